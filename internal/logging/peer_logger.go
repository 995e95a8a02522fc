// Copyright 2015 The Delix Project Authors. See the AUTHORS file at the top level directory.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// fanOutHandler is a slog.Handler that dispatches every record to two
// handlers: the process-wide handler and a connection's dedicated
// file handler.
type fanOutHandler struct {
	primary   slog.Handler
	secondary slog.Handler
}

func (h *fanOutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.primary.Enabled(ctx, level) || h.secondary.Enabled(ctx, level)
}

func (h *fanOutHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.primary.Enabled(ctx, r.Level) {
		if err := h.primary.Handle(ctx, r); err != nil {
			return err
		}
	}
	// A write failure on the peer's file must not suppress the
	// process-wide record.
	if h.secondary.Enabled(ctx, r.Level) {
		_ = h.secondary.Handle(ctx, r)
	}
	return nil
}

func (h *fanOutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &fanOutHandler{
		primary:   h.primary.WithAttrs(attrs),
		secondary: h.secondary.WithAttrs(attrs),
	}
}

func (h *fanOutHandler) WithGroup(name string) slog.Handler {
	return &fanOutHandler{
		primary:   h.primary.WithGroup(name),
		secondary: h.secondary.WithGroup(name),
	}
}

// NewPeerLogger builds a logger that writes both to baseLogger and to
// a dedicated per-peer debug file, at:
//
//	{peerLogDir}/{peer}.log
//
// It returns the combined logger, an io.Closer that must be closed
// when the connection to peer ends, and the file's path (relative when
// peerLogDir is relative). If
// peerLogDir is empty, NewPeerLogger returns baseLogger unmodified.
func NewPeerLogger(baseLogger *slog.Logger, peerLogDir, peer string) (*slog.Logger, io.Closer, string, error) {
	if peerLogDir == "" {
		return baseLogger, io.NopCloser(nil), "", nil
	}

	if err := os.MkdirAll(peerLogDir, 0755); err != nil {
		return nil, nil, "", fmt.Errorf("creating peer log directory %s: %w", peerLogDir, err)
	}

	logPath := filepath.Join(peerLogDir, peer+".log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, "", fmt.Errorf("opening peer log file %s: %w", logPath, err)
	}

	// The peer's dedicated file always captures debug level for
	// post-mortem diagnosis, independent of the process-wide level.
	fileHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	combined := &fanOutHandler{
		primary:   baseLogger.Handler(),
		secondary: fileHandler,
	}

	return slog.New(combined), f, logPath, nil
}

// RemovePeerLog deletes a disconnected peer's debug log file. It is a
// no-op if peerLogDir is empty or the file does not exist.
func RemovePeerLog(peerLogDir, peer string) {
	if peerLogDir == "" {
		return
	}
	os.Remove(filepath.Join(peerLogDir, peer+".log"))
}
