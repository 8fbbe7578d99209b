// Package stats tracks payload transfer totals and rates for one peer
// connection.
package stats

import "github.com/rcrowley/go-metrics"

// Transfer accumulates the payload traffic of a single connection and the
// free upload credit granted to it by the share-ratio accountant.
// Protocol chatter does not count, only piece payload.
type Transfer struct {
	downloadSpeed metrics.Meter
	uploadSpeed   metrics.Meter
	downloaded    metrics.Counter
	uploaded      metrics.Counter
	freeUpload    int64
}

// New returns a Transfer with running speed meters.
// Call Close when the connection goes away to stop the meters.
func New() *Transfer {
	return &Transfer{
		downloadSpeed: metrics.NewMeter(),
		uploadSpeed:   metrics.NewMeter(),
		downloaded:    metrics.NewCounter(),
		uploaded:      metrics.NewCounter(),
	}
}

// AddPayloadDownloaded records n bytes of piece payload received.
func (t *Transfer) AddPayloadDownloaded(n int64) {
	t.downloaded.Inc(n)
	t.downloadSpeed.Mark(n)
}

// AddPayloadUploaded records n bytes of piece payload sent.
func (t *Transfer) AddPayloadUploaded(n int64) {
	t.uploaded.Inc(n)
	t.uploadSpeed.Mark(n)
}

// TotalPayloadDownload returns the bytes of payload received so far.
func (t *Transfer) TotalPayloadDownload() int64 { return t.downloaded.Count() }

// TotalPayloadUpload returns the bytes of payload sent so far.
func (t *Transfer) TotalPayloadUpload() int64 { return t.uploaded.Count() }

// DownloadRate returns the recent payload download rate in bytes/second.
func (t *Transfer) DownloadRate() int { return int(t.downloadSpeed.Rate1()) }

// UploadRate returns the recent payload upload rate in bytes/second.
func (t *Transfer) UploadRate() int { return int(t.uploadSpeed.Rate1()) }

// AddFreeUpload adjusts the free upload credit. The accountant both grants
// credit (positive delta) and reclaims surplus (negative delta), so the
// ledger may go negative.
func (t *Transfer) AddFreeUpload(delta int64) { t.freeUpload += delta }

// FreeUpload returns the free upload credit balance.
func (t *Transfer) FreeUpload() int64 { return t.freeUpload }

// ShareDiff returns the signed byte balance of the connection: payload we
// sent minus payload we received. Positive means we have given more than we
// got back. The free upload ledger is tracked separately and does not move
// the balance.
func (t *Transfer) ShareDiff() int64 {
	return t.uploaded.Count() - t.downloaded.Count()
}

// Fold returns the download and upload totals of a closing connection so the
// caller can add them to the record's previous-connection counters. The
// connection's own counters are left as they are.
func (t *Transfer) Fold() (download, upload int64) {
	return t.downloaded.Count(), t.uploaded.Count()
}

// AddPrev seeds the counters from a previous connection on the same peer.
func (t *Transfer) AddPrev(download, upload int64) {
	t.downloaded.Inc(download)
	t.uploaded.Inc(upload)
}

// Close stops the speed meters.
func (t *Transfer) Close() {
	t.downloadSpeed.Stop()
	t.uploadSpeed.Stop()
}
