package main

import (
	"io"

	"capital_bot/internal/models"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

func writeSeries(w io.Writer, format string, series models.PriceSeries) error {
	var (
		b   []byte
		err error
	)
	switch format {
	case formatJSON:
		b, err = sonic.ConfigStd.MarshalIndent(series, "", "  ")
	case formatYAML:
		b, err = yaml.Marshal(series)
	default:
		return errors.Errorf("unknown format %q", format)
	}
	if err != nil {
		return errors.Wrapf(err, "marshal %s", format)
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n")
	return err
}
