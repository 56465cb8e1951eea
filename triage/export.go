package triage

import (
	"context"

	"room-triage/storage"
)

// Export writes the ranked scored listings to a CSV file at path and returns
// how many rows were written.
func (o *Orchestrator) Export(ctx context.Context, path string) (int, error) {
	ranked, scores, err := o.Ranked(ctx)
	if err != nil {
		return 0, err
	}
	w, err := storage.NewCSVWriter(path)
	if err != nil {
		return 0, err
	}
	if err := w.WriteScored(ranked, scores); err != nil {
		_ = w.Close()
		return 0, err
	}
	o.logger.Info("[triage] Exported %d scored listings to %s", len(ranked), path)
	return len(ranked), w.Close()
}
