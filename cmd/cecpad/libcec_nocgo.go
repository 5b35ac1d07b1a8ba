//go:build !cgo || nolibcec

package main

import (
	"errors"
	"log/slog"
)

func openLibCEC(cfg CECConfig, h SessionHandlers, logger *slog.Logger) (*LibCECSession, error) {
	return nil, errors.New("built without libcec; set cec.backend: cec-client")
}
