package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"nucleus/internal/kconfig"
	"nucleus/internal/klog"
)

const (
	physMemFlag   = "phys-mem-bytes"
	userMemFlag   = "user-mem-start"
	numBinsFlag   = "num-bins"
	quantumFlag   = "ticks-per-quantum"
	tickRateFlag  = "tick-rate"
	initImageFlag = "init"
	verboseFlag   = "verbose"
)

// rootCmd is the nucleus boot harness: a small Cobra command, grounded
// in arctir-proctor's CLI construction, that boots the simulated machine
// and runs until halt is called or it's interrupted.
var rootCmd = &cobra.Command{
	Use:   "nucleus",
	Short: "Boots the simulated preemptive-multitasking kernel core.",
	RunE: func(cmd *cobra.Command, args []string) error {
		fs := cmd.Flags()

		if verbose, err := fs.GetBool(verboseFlag); err == nil && verbose {
			klog.SetLevel(logrus.DebugLevel)
		}

		physMem, err := fs.GetUint32(physMemFlag)
		if err != nil {
			return err
		}
		userMem, err := fs.GetUint32(userMemFlag)
		if err != nil {
			return err
		}
		numBins, err := fs.GetInt(numBinsFlag)
		if err != nil {
			return err
		}
		quantum, err := fs.GetInt(quantumFlag)
		if err != nil {
			return err
		}
		tickRate, err := fs.GetDuration(tickRateFlag)
		if err != nil {
			return err
		}
		initName, err := fs.GetString(initImageFlag)
		if err != nil {
			return err
		}

		cfg := kconfig.Config{
			UserMemStart:    userMem,
			PhysMemBytes:    physMem,
			NumBins:         numBins,
			TicksPerQuantum: quantum,
		}

		m, err := newMachine(cfg, tickRate, initName)
		if err != nil {
			return err
		}
		m.run()
		return nil
	},
}

func init() {
	def := kconfig.Default()
	rootCmd.Flags().Uint32(physMemFlag, def.PhysMemBytes, "Total simulated physical memory, in bytes.")
	rootCmd.Flags().Uint32(userMemFlag, def.UserMemStart, "First byte of the frame-manager-tracked user memory region.")
	rootCmd.Flags().Int(numBinsFlag, def.NumBins, "Number of buddy-allocator free-list bins.")
	rootCmd.Flags().Int(quantumFlag, def.TicksPerQuantum, "Scheduler ticks per quantum before a yield is expected.")
	rootCmd.Flags().Duration(tickRateFlag, 10*time.Millisecond, "Wall-clock interval between simulated timer ticks.")
	rootCmd.Flags().String(initImageFlag, "init", "Program-image-table entry to exec as init.")
	rootCmd.Flags().Bool(verboseFlag, false, "Enable debug-level logging.")
}

// SetupCommands wires the command tree, mirroring the shape of the
// teacher's own cmd.SetupCommands.
func SetupCommands() *cobra.Command {
	return rootCmd
}

func main() {
	cmd := SetupCommands()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
