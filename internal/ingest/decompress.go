// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ingest is the archive driver of §4.1: hourly polling of the
// archive list, each new archive streamed through an external
// decompressor child process chosen by file extension, and the
// per-archive / mid-archive checkpointing that makes the pipeline
// crash-safe.
package ingest

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// decompressorFor picks the external decompressor binary and argv for
// archiveURL's extension, per spec.md §4.1: "the archive's compression
// format — historically bzip2, now zstandard — is chosen at runtime by
// file extension". The zstd case mirrors process_archive.rs's literal
// `Command::new("pzstd").arg("-d").arg("-c")`; bzip2 has no analogue in
// the original (lichess's earliest archives predate that service) so it
// follows the same decompress-to-stdout shape with the standard `bzip2`
// binary.
func decompressorFor(archiveURL string) ([]string, error) {
	switch {
	case strings.HasSuffix(archiveURL, ".bz2"):
		return []string{"bzip2", "-d", "-c"}, nil
	case strings.HasSuffix(archiveURL, ".zst"):
		return []string{"pzstd", "-d", "-c"}, nil
	default:
		return nil, fmt.Errorf("ingest: unrecognized archive extension for %q", archiveURL)
	}
}

// archivePipe is the streaming byte source of §4.1/§5/§6: a curl child
// process fetching the archive, its stdout piped directly into a
// decompressor child process's stdin, with the decompressor's stdout
// exposed as the reader the PGN scanner consumes. Nothing is buffered
// whole in memory on either side of the pipe.
type archivePipe struct {
	curl       *exec.Cmd
	decompress *exec.Cmd
	stdout     io.ReadCloser
	closed     bool
}

func (p *archivePipe) Read(b []byte) (int, error) {
	return p.stdout.Read(b)
}

// Close drains the pipe and waits for both children, reporting the
// first failure — mirroring process_archive's `curl_child.wait()?` /
// `pbzip_child.wait()?` pair performed once the streaming parse is
// done. Safe to call more than once.
func (p *archivePipe) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	_, copyErr := io.Copy(io.Discard, p.stdout)
	closeErr := p.stdout.Close()

	curlErr := p.curl.Wait()
	decompErr := p.decompress.Wait()

	switch {
	case curlErr != nil:
		return fmt.Errorf("ingest: curl %q: %w", p.curl.Args, curlErr)
	case decompErr != nil:
		return fmt.Errorf("ingest: decompressor %q: %w", p.decompress.Args, decompErr)
	case copyErr != nil:
		return copyErr
	default:
		return closeErr
	}
}

// openArchivePipe spawns `curl <url>` and pipes its stdout into the
// decompressor matching archiveURL's extension, returning the
// decompressor's stdout as a streaming reader. This is the Go
// translation of process_archive.rs's process_archive function: two
// child processes chained through an OS pipe rather than an in-process
// decoder, per spec.md §4.1/§5/§6's external-decompressor mandate.
func openArchivePipe(ctx context.Context, archiveURL string) (*archivePipe, error) {
	decompArgv, err := decompressorFor(archiveURL)
	if err != nil {
		return nil, err
	}

	curlCmd := exec.CommandContext(ctx, "curl", "-sSL", archiveURL)
	curlOut, err := curlCmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ingest: curl stdout pipe: %w", err)
	}

	decompCmd := exec.CommandContext(ctx, decompArgv[0], decompArgv[1:]...)
	decompCmd.Stdin = curlOut
	decompOut, err := decompCmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ingest: decompressor stdout pipe: %w", err)
	}

	if err := curlCmd.Start(); err != nil {
		return nil, fmt.Errorf("ingest: start curl for %q: %w", archiveURL, err)
	}
	if err := decompCmd.Start(); err != nil {
		_ = curlCmd.Process.Kill()
		_ = curlCmd.Wait()
		return nil, fmt.Errorf("ingest: start decompressor for %q: %w", archiveURL, err)
	}

	return &archivePipe{curl: curlCmd, decompress: decompCmd, stdout: decompOut}, nil
}
