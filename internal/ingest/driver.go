// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/chess-erdos/wcnserver/internal/pgn"
	"github.com/chess-erdos/wcnserver/internal/store"
	"github.com/chess-erdos/wcnserver/internal/wcn"
	"github.com/chess-erdos/wcnserver/pkg/log"
)

// Config bundles the archive driver's external interfaces (§6): where
// to find the archive list and how to fetch an archive.
type Config struct {
	ArchiveListURL string
	HTTPClient     *http.Client
	PollInterval   time.Duration
}

// Driver is the single long-running ingestion task of §5. It is never
// run concurrently with itself; the propagator it wraps owns the only
// in-memory WCN cache.
type Driver struct {
	cfg  Config
	s    *store.Store
	prop *wcn.Propagator
}

// New builds a Driver over the given store, applying defaults for any
// zero-valued Config field.
func New(s *store.Store, cfg Config) *Driver {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Hour
	}
	return &Driver{cfg: cfg, s: s, prop: wcn.New(s)}
}

// Run seeds the champion row on first start, then polls the archive
// list on cfg.PollInterval (via gocron, starting immediately) until ctx
// is cancelled, mirroring the original process_new_archives_task loop.
//
// An invariant violation (wcn.ErrInvariant) surfacing from a poll cycle
// is not retried: it is logged via log.Panic per spec.md §7(d), and
// also pushed onto a buffered channel Run itself watches, so that even
// if the scheduler's own panic recovery were to swallow the panic, Run
// still returns an error and tears the process down through main's
// errgroup rather than continuing to poll over corrupted store state —
// the Go equivalent of the original's spawn_blocking panic turning into
// a JoinError that bubbles out of process_new_archives_task.
func (d *Driver) Run(ctx context.Context) error {
	if err := d.prop.EnsureChampion(); err != nil {
		return fmt.Errorf("ingest.Run: seed champion: %w", err)
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("ingest.Run: new scheduler: %w", err)
	}

	fatal := make(chan error, 1)
	_, err = scheduler.NewJob(
		gocron.DurationJob(d.cfg.PollInterval),
		gocron.NewTask(func() {
			if err := d.pollOnce(ctx); err != nil {
				if errors.Is(err, wcn.ErrInvariant) {
					select {
					case fatal <- err:
					default:
					}
					log.Panic("ingest: invariant violation, halting ingestion worker: ", err)
					return
				}
				log.Errorf("ingest: poll cycle failed: %v", err)
			}
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("ingest.Run: schedule poll job: %w", err)
	}

	scheduler.Start()
	select {
	case <-ctx.Done():
		return scheduler.Shutdown()
	case err := <-fatal:
		_ = scheduler.Shutdown()
		return fmt.Errorf("ingest.Run: %w", err)
	}
}

// pollOnce fetches the archive list, processes every new archive in
// ascending order, and returns the first error encountered — per §4.1,
// a failed archive aborts the cycle and is retried next poll.
func (d *Driver) pollOnce(ctx context.Context) error {
	last, err := d.lastProcessedArchive()
	if err != nil {
		return fmt.Errorf("pollOnce: %w", err)
	}

	archives, err := d.fetchArchiveList(ctx)
	if err != nil {
		return fmt.Errorf("pollOnce: fetch archive list: %w", err)
	}

	pending := filterAndSortArchives(archives, last)
	for _, archiveURL := range pending {
		if err := d.processArchive(ctx, archiveURL); err != nil {
			return fmt.Errorf("pollOnce: process archive %q: %w", archiveURL, err)
		}
		if err := d.s.CommitArchiveDone(archiveURL); err != nil {
			return fmt.Errorf("pollOnce: commit archive %q: %w", archiveURL, err)
		}
		log.Infof("ingest: archive %q fully processed", archiveURL)
	}
	return nil
}

func (d *Driver) lastProcessedArchive() (string, error) {
	meta, ok, err := d.s.ServerMeta().Get(struct{}{})
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return meta.LastProcessedArchive, nil
}

func (d *Driver) fetchArchiveList(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.cfg.ArchiveListURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("archive list endpoint returned %s", resp.Status)
	}

	var urls []string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		for _, url := range strings.Fields(scanner.Text()) {
			urls = append(urls, url)
		}
	}
	return urls, scanner.Err()
}

// filterAndSortArchives drops anything lexicographically <= last and
// returns the remainder in ascending (chronological) order, per §4.1.
func filterAndSortArchives(archives []string, last string) []string {
	pending := make([]string, 0, len(archives))
	for _, a := range archives {
		if a > last {
			pending = append(pending, a)
		}
	}
	sort.Strings(pending)
	return pending
}

// processArchive streams, decompresses and scans one archive, applying
// the header filter and propagator to every game in strict order.
// GameCheckpoint fast-forwards past games already applied before a
// prior crash. The archive itself is never fetched by this process's
// own HTTP client: per §4.1/§6, it is piped through curl and an
// external decompressor child process (archivePipe), matching
// process_archive.rs's process_archive.
func (d *Driver) processArchive(ctx context.Context, archiveURL string) error {
	checkpoint, _, err := d.s.Checkpoint().Get(struct{}{})
	if err != nil {
		return err
	}

	pipe, err := openArchivePipe(ctx, archiveURL)
	if err != nil {
		return fmt.Errorf("open archive pipe: %w", err)
	}
	defer pipe.Close()

	scanner := pgn.NewScanner(pipe)
	filter := pgn.NewFilter(d.prop, checkpoint.GameID, func(g pgn.QualifyingGame) error {
		return d.prop.Apply(wcn.QualifyingGame{
			GameID:        g.GameID,
			Time:          g.Time,
			WinnerID:      g.WinnerID,
			LoserID:       g.LoserID,
			WinnerIsWhite: g.WinnerIsWhite,
			WinnerInfo:    g.WinnerInfo,
			LoserInfo:     g.LoserInfo,
			MoveCount:     g.MoveCount,
			TimeControl:   g.TimeControl,
			Termination:   g.Termination,
		})
	})

	for {
		err := scanner.ScanGame(filter)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("scan/propagate: %w", err)
		}
	}

	for reason, n := range filter.Counters() {
		log.Debugf("ingest: archive %q counter %s=%d", archiveURL, reason, n)
	}

	if err := pipe.Close(); err != nil {
		return fmt.Errorf("archive pipe: %w", err)
	}
	return nil
}
