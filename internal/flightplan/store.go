package flightplan

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Plans are stored as JSON. Files whose name ends in ".zst" hold
// zstd-compressed JSON.

func Load(r io.Reader) (*FlightPlan, error) {
	var p FlightPlan
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode flight plan: %w", err)
	}
	return &p, nil
}

func Parse(s string) (*FlightPlan, error) {
	return Load(strings.NewReader(s))
}

func LoadFile(filename string) (*FlightPlan, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open flight plan: %w", err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(filename, ".zst") {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		defer zr.Close()
		r = zr
	}

	p, err := Load(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return p, nil
}

func Write(w io.Writer, p *FlightPlan) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

func SaveFile(filename string, p *FlightPlan) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create flight plan: %w", err)
	}

	bw := bufio.NewWriter(f)
	var w io.Writer = bw
	var zw *zstd.Encoder
	if strings.HasSuffix(filename, ".zst") {
		if zw, err = zstd.NewWriter(bw); err != nil {
			f.Close()
			return err
		}
		w = zw
	}

	if err := Write(w, p); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", filename, err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			f.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
