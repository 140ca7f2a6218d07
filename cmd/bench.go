package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/chzyer/logex"
	"github.com/jonas-koeritz/ramdisk"
	"github.com/jonas-koeritz/ramdisk/device"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

type benchConfig struct {
	workers int
	count   int
	bs      int
}

type benchResult struct {
	written  int64
	elapsed  time.Duration
	checksum uint32
}

// pattern is the content worker w leaves in slot.
func pattern(w, slot, n int) []byte {
	return bytes.Repeat([]byte{byte(w*31 + slot + 1)}, n)
}

// runBench gives every worker its own run of sectors and has it write count
// blocks of bs bytes round-robin into that run, then reads every slot back.
func runBench(ctx context.Context, dev *device.Device, cfg benchConfig) (*benchResult, error) {
	if cfg.workers <= 0 || cfg.count <= 0 {
		return nil, logex.NewError("workers and count must be positive")
	}
	if cfg.bs <= 0 || cfg.bs%ramdisk.SectorSize != 0 {
		return nil, logex.NewErrorf("block size %d is not a multiple of %d", cfg.bs, ramdisk.SectorSize)
	}

	blockSectors := uint64(cfg.bs / ramdisk.SectorSize)
	region := dev.CapacitySectors() / uint64(cfg.workers)
	slots := int(region / blockSectors)
	if slots == 0 {
		return nil, logex.NewErrorf("%s device too small for %d workers of %s blocks",
			human(dev.Size()), cfg.workers, human(int64(cfg.bs)))
	}
	used := cfg.count
	if used > slots {
		used = slots
	}

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.workers; w++ {
		w := w
		g.Go(func() error {
			sess := dev.Open()
			defer sess.Close()
			base := uint64(w) * region

			for i := 0; i < cfg.count; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				slot := i % slots
				sector := base + uint64(slot)*blockSectors
				data := pattern(w, slot, cfg.bs)

				var err error
				if dev.Strategy() == ramdisk.Direct {
					half := cfg.bs / 2
					err = sess.SubmitSegments(sector, ramdisk.Write, []ramdisk.Segment{
						{Buf: data[:half]}, {Buf: data[half:]},
					})
				} else {
					err = sess.Write(sector, data)
				}
				if err != nil {
					return logex.Trace(err, w, sector)
				}
			}
			logex.Debug("worker", w, "wrote", cfg.count, "blocks")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	sess := dev.Open()
	defer sess.Close()
	for w := 0; w < cfg.workers; w++ {
		for slot := 0; slot < used; slot++ {
			sector := uint64(w)*region + uint64(slot)*blockSectors
			got, err := sess.Read(sector, uint32(cfg.bs))
			if err != nil {
				return nil, logex.Trace(err)
			}
			if !bytes.Equal(got, pattern(w, slot, cfg.bs)) {
				return nil, ramdisk.ErrTransfer.Trace("verify failed", w, sector)
			}
		}
	}

	sum, err := dev.Checksum()
	if err != nil {
		return nil, err
	}
	return &benchResult{
		written:  int64(cfg.workers) * int64(cfg.count) * int64(cfg.bs),
		elapsed:  elapsed,
		checksum: sum,
	}, nil
}

func (r *benchResult) String() string {
	secs := r.elapsed.Seconds()
	if secs <= 0 {
		secs = 1e-9
	}
	return fmt.Sprintf("WRITTEN:    %s in %v (%.1f MiB/s)\nCRC32:      %08x\n",
		human(r.written), r.elapsed.Round(time.Microsecond),
		float64(r.written)/secs/(1024*1024), r.checksum)
}

// openImage resolves the --image target. "-" is stdout, refused when it is a
// terminal.
func openImage(path string) (io.WriteCloser, error) {
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return nil, logex.Trace(err)
		}
		return f, nil
	}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return nil, logex.NewError("refusing to write the image to a terminal")
	}
	return nopCloser{os.Stdout}, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func benchCommand() *cobra.Command {
	var flags deviceFlags
	var cfg benchConfig
	var image string

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run concurrent writers against a RAM disk and verify the result",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			var out io.WriteCloser
			if image != "" {
				var err error
				if out, err = openImage(image); err != nil {
					return err
				}
				defer out.Close()
			}

			dev, err := flags.create()
			if err != nil {
				return err
			}
			defer dev.Destroy()

			res, err := runBench(c.Context(), dev, cfg)
			if err != nil {
				return err
			}

			report := os.Stdout
			if image == "-" {
				report = os.Stderr
			}
			fmt.Fprintf(report, "%s%s", dev.String(), res.String())

			if out != nil {
				if _, err := dev.WriteTo(out); err != nil {
					return logex.Trace(err)
				}
			}
			return nil
		},
	}
	flags.register(cmd, true)
	cmd.Flags().IntVar(&cfg.workers, "workers", 4, "number of concurrent writers")
	cmd.Flags().IntVar(&cfg.count, "count", 1000, "blocks written per worker")
	cmd.Flags().IntVar(&cfg.bs, "bs", 4096, "block size in bytes, a multiple of 512")
	cmd.Flags().StringVar(&image, "image", "", "write the final image to FILE, or - for stdout")
	return cmd
}
