package main

import (
	"fmt"
	"os"
	"time"

	"github.com/zoobzio/clockz"

	"nucleus/internal/console"
	"nucleus/internal/ctxswitch"
	"nucleus/internal/frame"
	"nucleus/internal/image"
	"nucleus/internal/kconfig"
	"nucleus/internal/keyboard"
	"nucleus/internal/klog"
	"nucleus/internal/paging"
	"nucleus/internal/reaper"
	"nucleus/internal/sched"
	"nucleus/internal/syscall"
	"nucleus/internal/vmm"
)

// builtinImages is the program-image table baked into this binary, the
// hosted stand-in for a boot-time initrd (§4.L, §6 "Executable file
// table"). A real deployment would populate this from an embedded
// filesystem; this harness ships one trivial "init" image so the machine
// has something to exec by default.
var builtinImages = map[string][]byte{
	"init": []byte("hello from the nucleus init program\n"),
}

// machine is every collaborator the boot harness wires together and runs.
type machine struct {
	cfg      kconfig.Config
	tickRate time.Duration
	initName string

	sched    *sched.Scheduler
	syscalls *syscall.Dispatcher
	reaper   *reaper.Reaper
	stop     chan struct{}
}

// newMachine constructs every component in dependency order — frame
// manager and arena, then the page-directory/VMM facade over them, then
// the scheduler, then the syscall dispatcher and reaper that sit on top
// — exactly the bottom-up order SPEC_FULL.md's component table (§2)
// lists them in.
func newMachine(cfg kconfig.Config, tickRate time.Duration, initName string) (*machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	frames := frame.NewManager(cfg)
	arena, err := frame.NewArena(cfg)
	if err != nil {
		return nil, fmt.Errorf("nucleus: allocating simulated physical memory: %w", err)
	}
	v := vmm.New(frames, arena)

	images := image.New(builtinImages)
	initBytes, ok := images.Bytes(initName)
	if !ok {
		return nil, fmt.Errorf("nucleus: no program image named %q", initName)
	}

	initDir := paging.NewDirectory(cfg)
	initSections := []vmm.Section{{
		VAddrStart: cfg.UserMemStart,
		Length:     uint32(len(initBytes)),
		PTEFlags:   paging.EntryFlags{Present: true, Writable: true, User: true},
		PDEFlags:   paging.EntryFlags{Present: true, Writable: true, User: true},
		Source:     initBytes,
	}}
	if err := v.MapSections(initDir, initSections); err != nil {
		return nil, fmt.Errorf("nucleus: mapping init program image: %w", err)
	}

	hs := ctxswitch.NewHostSwitcher()
	s := sched.New(hs, clockz.RealClock)

	con := console.New(os.Stdout)
	kb := keyboard.New(con)

	stop := make(chan struct{})
	d := syscall.New(s, v, con, kb, images, cfg, stop)
	r := reaper.New(s, nil)

	initPCB, _ := s.Bootstrap(idleBody(), reaperBody(r, stop), initDir)
	s.RegisterBody(initPCB.OriginalTid, initBody(d))

	return &machine{cfg: cfg, tickRate: tickRate, initName: initName, sched: s, syscalls: d, reaper: r, stop: stop}, nil
}

// idleBody is the goroutine run when no thread is runnable: it does
// nothing but immediately yield the simulated CPU back to the dispatch
// loop, forever.
func idleBody() func(ctxswitch.RegisterFrame, <-chan struct{}, chan<- ctxswitch.RegisterFrame) {
	return func(initial ctxswitch.RegisterFrame, resumeCh <-chan struct{}, suspendCh chan<- ctxswitch.RegisterFrame) {
		for {
			suspendCh <- ctxswitch.RegisterFrame{}
			<-resumeCh
		}
	}
}

// reaperBody wraps r.Run as the goroutine body the reaper TCB runs.
func reaperBody(r *reaper.Reaper, stop <-chan struct{}) func(ctxswitch.RegisterFrame, <-chan struct{}, chan<- ctxswitch.RegisterFrame) {
	return func(initial ctxswitch.RegisterFrame, resumeCh <-chan struct{}, suspendCh chan<- ctxswitch.RegisterFrame) {
		r.Run(stop)
	}
}

// initBody runs the demo init program: print a banner identifying
// itself, then halt the simulation. A real init image would instead be
// an ELF entry point exec'd into; this harness's init is hosted Go code
// exercising the syscall dispatcher directly in its place.
func initBody(d *syscall.Dispatcher) func(ctxswitch.RegisterFrame, <-chan struct{}, chan<- ctxswitch.RegisterFrame) {
	return func(initial ctxswitch.RegisterFrame, resumeCh <-chan struct{}, suspendCh chan<- ctxswitch.RegisterFrame) {
		d.Print(fmt.Sprintf("nucleus: init running as tid %d\n", d.Gettid()))
		d.Halt()
		for {
			suspendCh <- ctxswitch.RegisterFrame{}
			<-resumeCh
		}
	}
}

// run drives the dispatch loop and tick source until stopped, logging
// the boot configuration first.
func (m *machine) run() {
	log := klog.For("nucleus")
	log.WithField("userMemStart", m.cfg.UserMemStart).
		WithField("physMemBytes", m.cfg.PhysMemBytes).
		WithField("numBins", m.cfg.NumBins).
		WithField("ticksPerQuantum", m.cfg.TicksPerQuantum).
		WithField("tickRate", m.tickRate).
		WithField("init", m.initName).
		Info("booting simulated machine")

	go m.sched.RunTicks(m.tickRate, m.stop)
	m.sched.Run(m.stop)

	log.Info("halted")
}
