package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chzyer/logex"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/jonas-koeritz/ramdisk"
	"github.com/jonas-koeritz/ramdisk/device"
	"github.com/jonas-koeritz/ramdisk/fusefs"
	"github.com/spf13/cobra"
)

type deviceFlags struct {
	size     string
	strategy string
}

func (f *deviceFlags) register(cmd *cobra.Command, withStrategy bool) {
	cmd.Flags().StringVar(&f.size, "size", human(ramdisk.DefaultSize), "device size (e.g. 512k, 2m, 1g)")
	if withStrategy {
		cmd.Flags().StringVar(&f.strategy, "strategy", "queued", "dispatch strategy (queued|direct)")
	}
}

func (f *deviceFlags) create() (*device.Device, error) {
	cfg := device.DefaultConfig()

	size, err := parseSize(f.size)
	if err != nil {
		return nil, err
	}
	cfg.Size = size

	if f.strategy != "" {
		cfg.Strategy, err = ramdisk.ParseStrategy(f.strategy)
		if err != nil {
			return nil, err
		}
	}
	return device.Create(cfg)
}

func mountCommand(debug *bool) *cobra.Command {
	var flags deviceFlags

	cmd := &cobra.Command{
		Use:   "mount <mount point>",
		Short: "Create a RAM disk and export it as a file through FUSE",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dev, err := flags.create()
			if err != nil {
				return err
			}
			fmt.Printf("%s\n", dev.String())

			opts := &fs.Options{}
			opts.Debug = *debug

			server, root, err := fusefs.Mount(args[0], dev, opts)
			if err != nil {
				dev.Destroy()
				return logex.Trace(err)
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			go func() {
				sig := <-sigChan
				logex.Info("received", sig, "unmounting", args[0])
				if err := server.Unmount(); err != nil {
					logex.Error("unmount:", err)
				}
			}()

			server.Wait()
			signal.Stop(sigChan)
			root.Close()
			return dev.Destroy()
		},
	}
	flags.register(cmd, true)
	return cmd
}

func infoCommand() *cobra.Command {
	var flags deviceFlags

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print capacity, geometry and partition count of a RAM disk",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			dev, err := flags.create()
			if err != nil {
				return err
			}
			fmt.Printf("%s", dev.String())

			g := dev.Geometry()
			if g.Sectors() > 0 {
				last, err := g.CHS(ramdisk.SectorAddress(g.Sectors() - 1))
				if err == nil {
					fmt.Printf("LAST CHS:   %v (%s usable)\n", last, human(g.Bytes()))
				}
			}
			return dev.Destroy()
		},
	}
	flags.register(cmd, false)
	return cmd
}

func main() {
	var debug bool
	root := &cobra.Command{
		Use:          "ramdisk",
		Short:        "In-memory sector addressed block device",
		SilenceUsage: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if debug {
				logex.DebugLevel = 0
			}
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "print debug and FUSE protocol logs")
	root.AddCommand(mountCommand(&debug), infoCommand(), benchCommand())

	if err := root.Execute(); err != nil {
		logex.Fatal(err)
	}
}
