package models

import "encoding/json"

// SessionState is the snapshot persisted between runs so a reopened session
// restores its command history, image metadata and editor selection.
type SessionState struct {
	OutputState     OutputState     `json:"outputState"`
	EditorState     EditorState     `json:"editorState"`
	ImageCacheState ImageCacheState `json:"imageCacheState"`
	NextBatchID     int             `json:"nextBatchId"`
}

// OutputState holds the console/output area state.
type OutputState struct {
	SelectedTabID   int      `json:"selectedTabId"`
	SelectedImageID int      `json:"selectedImageId"`
	CommandHistory  []string `json:"commandHistory"`
	ResultsContent  []byte   `json:"resultsContent,omitempty"`
}

// EditorState holds the editor selection. LastSelectedFileID is -1 when nothing was selected.
type EditorState struct {
	LastSelectedFileID int `json:"lastSelectedFileId"`
}

// ImageCacheState is the image cache metadata table. It never includes image bytes.
type ImageCacheState struct {
	HostIdentifier string         `json:"hostIdentifier"`
	Images         []SessionImage `json:"images"`
}

// MaxCommandHistory bounds the persisted command history.
const MaxCommandHistory = 100

// NewSessionState returns the state used when nothing was persisted.
func NewSessionState() SessionState {
	return SessionState{
		OutputState: OutputState{CommandHistory: []string{}},
		EditorState: EditorState{LastSelectedFileID: -1},
		ImageCacheState: ImageCacheState{
			Images: []SessionImage{},
		},
		NextBatchID: 1,
	}
}

// AddCommand appends to the history, dropping consecutive duplicates and the oldest entries.
func (s *SessionState) AddCommand(cmd string) {
	h := s.OutputState.CommandHistory
	if n := len(h); n > 0 && h[n-1] == cmd {
		return
	}
	h = append(h, cmd)
	if len(h) > MaxCommandHistory {
		h = h[len(h)-MaxCommandHistory:]
	}
	s.OutputState.CommandHistory = h
}

// Marshal serializes the state.
func (s SessionState) Marshal() ([]byte, error) {
	images := make([]SessionImage, len(s.ImageCacheState.Images))
	for i, img := range s.ImageCacheState.Images {
		images[i] = img.WithoutData()
	}
	s.ImageCacheState.Images = images
	return json.Marshal(s)
}

// UnmarshalSessionState restores a state written by Marshal.
func UnmarshalSessionState(data []byte) (SessionState, error) {
	state := NewSessionState()
	if err := json.Unmarshal(data, &state); err != nil {
		return SessionState{}, err
	}
	if state.NextBatchID < 1 {
		state.NextBatchID = 1
	}
	return state, nil
}
