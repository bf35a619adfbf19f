package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetSessionStatusIsExclusive(t *testing.T) {
	SetSessionStatus("connecting")
	SetSessionStatus("connected")

	if got := testutil.ToFloat64(sessionStatus.WithLabelValues("connected")); got != 1 {
		t.Errorf("connected = %v, want 1", got)
	}
	if got := testutil.ToFloat64(sessionStatus.WithLabelValues("connecting")); got != 0 {
		t.Errorf("connecting = %v, want 0", got)
	}
}

func TestRecordFileDownload(t *testing.T) {
	before := testutil.ToFloat64(fileBytesDownloaded)
	RecordFileDownload("downloaded", 128)
	RecordFileDownload("not_modified", 0)

	if got := testutil.ToFloat64(fileBytesDownloaded) - before; got != 128 {
		t.Errorf("bytes delta = %v, want 128", got)
	}
	if got := testutil.ToFloat64(fileDownloadsTotal.WithLabelValues("not_modified")); got < 1 {
		t.Errorf("not_modified count = %v", got)
	}
}
