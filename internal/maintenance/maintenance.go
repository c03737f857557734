// Package maintenance runs the periodic housekeeping sweeps: dropping expired
// remote references, cleaning old local files, checking the storage quota,
// and pruning index rows whose files are gone.
package maintenance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/nanobanana/imagemcp/internal/config"
	"github.com/nanobanana/imagemcp/internal/storage"
	"github.com/nanobanana/imagemcp/internal/store"
	"github.com/nanobanana/imagemcp/pkg/models"
)

type SweepReport struct {
	Name       string   `json:"name"`
	Examined   int      `json:"examined"`
	Affected   int      `json:"affected"`
	FreedBytes int64    `json:"freed_bytes,omitempty"`
	Details    []string `json:"details,omitempty"`
	Errors     []string `json:"errors,omitempty"`
}

type Report struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	DryRun     bool          `json:"dry_run"`
	Sweeps     []SweepReport `json:"sweeps"`
}

// index is the slice of the artifact store the sweeps consume.
type index interface {
	ListExpiring(ctx context.Context, buffer time.Duration) ([]*models.ImageRecord, error)
	ListAll(ctx context.Context) ([]*models.ImageRecord, error)
	ClearRemoteInfo(ctx context.Context, id int64) (bool, error)
	Delete(ctx context.Context, id int64) error
	MissingLocalFiles(ctx context.Context) ([]*models.ImageRecord, error)
	UsageStats(ctx context.Context) (*store.Stats, error)
}

type Service struct {
	store   index
	storage *storage.Storage
	maxAge  time.Duration
	keep    int
	quota   int64
	log     zerolog.Logger
}

func New(st index, sto *storage.Storage, cfg *config.Config, log zerolog.Logger) *Service {
	return &Service{
		store:   st,
		storage: sto,
		maxAge:  time.Duration(cfg.Maintenance.MaxAgeHours) * time.Hour,
		keep:    cfg.Maintenance.KeepCount,
		quota:   cfg.Remote.QuotaBytes,
		log:     log.With().Str("component", "maintenance").Logger(),
	}
}

// RunCycle executes every sweep in a fixed order. A failing sweep is recorded
// in the report and the cycle moves on; completed sweeps are never discarded.
func (s *Service) RunCycle(ctx context.Context, dryRun bool) (*Report, error) {
	report := &Report{StartedAt: time.Now(), DryRun: dryRun}

	sweeps := []struct {
		name string
		run  func(context.Context, bool) (*SweepReport, error)
	}{
		{"expired_remotes", s.SweepExpiredRemotes},
		{"local_files", s.SweepLocalFiles},
		{"quota", s.CheckQuota},
		{"database", s.SweepDatabase},
	}
	for _, sweep := range sweeps {
		r, err := sweep.run(ctx, dryRun)
		if err != nil {
			s.log.Error().Str("sweep", sweep.name).Err(err).Msg("sweep failed")
			report.Sweeps = append(report.Sweeps, SweepReport{
				Name:   sweep.name,
				Errors: []string{err.Error()},
			})
			continue
		}
		report.Sweeps = append(report.Sweeps, *r)
	}

	report.FinishedAt = time.Now()
	s.log.Info().Bool("dry_run", dryRun).
		Dur("took", report.FinishedAt.Sub(report.StartedAt)).
		Msg("maintenance cycle finished")
	return report, nil
}

// SweepExpiredRemotes clears remote references that have passed their expiry.
// The local files stay; only the dangling remote identity is dropped. Per-row
// failures are collected into the report, not fatal.
func (s *Service) SweepExpiredRemotes(ctx context.Context, dryRun bool) (*SweepReport, error) {
	expired, err := s.store.ListExpiring(ctx, 0)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{Name: "expired_remotes", Examined: len(expired)}
	for _, rec := range expired {
		report.Details = append(report.Details, fmt.Sprintf("%s (expired %s)",
			rec.RemoteID, humanize.Time(*rec.ExpiresAt)))
		if dryRun {
			report.Affected++
			continue
		}
		ok, err := s.store.ClearRemoteInfo(ctx, rec.ID)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("clear %s: %v", rec.RemoteID, err))
			continue
		}
		if ok {
			report.Affected++
		}
	}

	if report.Affected > 0 {
		s.log.Info().Int("cleared", report.Affected).Bool("dry_run", dryRun).
			Msg("cleared expired remote references")
	}
	return report, nil
}

// SweepLocalFiles removes old local artifacts, both indexed ones past the age
// cutoff and untracked files sitting under the output root. The newest
// keep-count records are always protected, as is anything still backed by a
// live remote mirror or referenced as an edit parent.
func (s *Service) SweepLocalFiles(ctx context.Context, dryRun bool) (*SweepReport, error) {
	all, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	// Remote ids still referenced as an edit parent stay protected.
	parents := make(map[string]bool)
	for _, rec := range all {
		if rec.ParentRemoteID != "" {
			parents[rec.ParentRemoteID] = true
		}
	}

	report := &SweepReport{Name: "local_files", Examined: len(all)}
	now := time.Now()
	cutoff := now.Add(-s.maxAge)

	for i, rec := range all {
		if i < s.keep {
			continue
		}
		if rec.CreatedAt.After(cutoff) {
			continue
		}
		if rec.RemoteLive(now) {
			continue
		}
		if rec.RemoteID != "" && parents[rec.RemoteID] {
			continue
		}
		if !s.storage.WithinRoot(rec.Path) {
			continue
		}

		report.Details = append(report.Details, fmt.Sprintf("%s (%s, created %s)",
			rec.Path, humanize.Bytes(uint64(rec.SizeBytes)), humanize.Time(rec.CreatedAt)))
		if dryRun {
			report.Affected++
			report.FreedBytes += rec.SizeBytes
			continue
		}

		if err := s.storage.Remove(rec.Path, rec.ThumbPath); err != nil {
			s.log.Warn().Str("path", rec.Path).Err(err).Msg("failed to remove local file")
			report.Errors = append(report.Errors, fmt.Sprintf("remove %s: %v", rec.Path, err))
			continue
		}
		if err := s.store.Delete(ctx, rec.ID); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("delete record %d: %v", rec.ID, err))
			continue
		}
		report.Affected++
		report.FreedBytes += rec.SizeBytes
	}

	s.sweepUntracked(all, cutoff, dryRun, report)

	if report.Affected > 0 {
		s.log.Info().Int("removed", report.Affected).
			Str("freed", humanize.Bytes(uint64(report.FreedBytes))).
			Bool("dry_run", dryRun).Msg("cleaned old local files")
	}
	return report, nil
}

// sweepUntracked walks the output root for files the index does not know
// about and applies the same age cutoff to them.
func (s *Service) sweepUntracked(all []*models.ImageRecord, cutoff time.Time, dryRun bool, report *SweepReport) {
	known := make(map[string]bool, len(all))
	for _, rec := range all {
		known[rec.Path] = true
	}

	entries, err := os.ReadDir(s.storage.Root())
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("read output root: %v", err))
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(s.storage.Root(), entry.Name())
		if known[path] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		report.Examined++
		if info.ModTime().After(cutoff) {
			continue
		}

		report.Details = append(report.Details, fmt.Sprintf("%s (%s, untracked)",
			path, humanize.Bytes(uint64(info.Size()))))
		if dryRun {
			report.Affected++
			report.FreedBytes += info.Size()
			continue
		}
		if err := s.storage.Remove(path, ""); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("remove %s: %v", path, err))
			continue
		}
		report.Affected++
		report.FreedBytes += info.Size()
	}
}

// CheckQuota compares tracked storage usage against the configured quota.
// It never deletes anything; it only reports.
func (s *Service) CheckQuota(ctx context.Context, _ bool) (*SweepReport, error) {
	stats, err := s.store.UsageStats(ctx)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{Name: "quota", Examined: stats.TotalImages}
	report.Details = append(report.Details, fmt.Sprintf("using %s of %s",
		humanize.Bytes(uint64(stats.TotalSizeBytes)), humanize.Bytes(uint64(s.quota))))

	if stats.TotalSizeBytes > s.quota {
		report.Affected = 1
		s.log.Warn().Str("used", humanize.Bytes(uint64(stats.TotalSizeBytes))).
			Str("quota", humanize.Bytes(uint64(s.quota))).
			Msg("storage usage exceeds quota")
	}
	return report, nil
}

// SweepDatabase prunes index rows whose local files disappeared.
func (s *Service) SweepDatabase(ctx context.Context, dryRun bool) (*SweepReport, error) {
	missing, err := s.store.MissingLocalFiles(ctx)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{Name: "database", Examined: len(missing)}
	for _, rec := range missing {
		report.Details = append(report.Details, rec.Path)
		if dryRun {
			report.Affected++
			continue
		}
		if err := s.store.Delete(ctx, rec.ID); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("delete record %d: %v", rec.ID, err))
			continue
		}
		report.Affected++
	}

	if report.Affected > 0 {
		s.log.Info().Int("pruned", report.Affected).Bool("dry_run", dryRun).
			Msg("pruned records with missing files")
	}
	return report, nil
}
