// Package syscall is the trap-number dispatch layer (component J, §4.J,
// §6): one method per syscall in the table, each validating its
// arguments (against the current thread's page directory permissions
// where user pointers are involved) before calling down into the
// scheduler, VMM, or a hosted external collaborator, and translating any
// failure into the negative int64 convention of §7 via kerrors.Code.
//
// Unlike the original kernel's trap handlers, which receive the calling
// thread's tid as an explicit parameter pulled off the trapped stack,
// these methods ask the scheduler which TCB is CurrentTCB() — the hosted
// model's single simulated CPU always has exactly one thread "in the
// trap handler" at a time, the one the goroutine calling these methods is
// running as.
package syscall

import (
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"nucleus/internal/console"
	"nucleus/internal/ctxswitch"
	"nucleus/internal/image"
	"nucleus/internal/kconfig"
	"nucleus/internal/kerrors"
	"nucleus/internal/keyboard"
	"nucleus/internal/klog"
	"nucleus/internal/paging"
	"nucleus/internal/proc"
	"nucleus/internal/sched"
	"nucleus/internal/vmm"
)

// Dispatcher composes every hosted collaborator the syscall table touches.
type Dispatcher struct {
	sched    *sched.Scheduler
	vmm      *vmm.VMM
	console  *console.Console
	keyboard *keyboard.Keyboard
	images   *image.Table
	cfg      kconfig.Config

	stop     chan struct{}
	haltOnce sync.Once

	log *logrus.Entry
}

// New returns a Dispatcher. stop, if non-nil, is closed by Halt.
func New(s *sched.Scheduler, v *vmm.VMM, con *console.Console, kb *keyboard.Keyboard, images *image.Table, cfg kconfig.Config, stop chan struct{}) *Dispatcher {
	return &Dispatcher{
		sched:    s,
		vmm:      v,
		console:  con,
		keyboard: kb,
		images:   images,
		cfg:      cfg,
		stop:     stop,
		log:      klog.For("syscall"),
	}
}

func fatalCurrentThread(op string) int64 {
	return kerrors.Code(kerrors.New(op, kerrors.Fatal, "no current thread"))
}

// Gettid returns the calling thread's tid.
func (d *Dispatcher) Gettid() int64 {
	tcb := d.sched.CurrentTCB()
	if tcb == nil {
		return -1
	}
	return int64(tcb.Tid)
}

// Yield implements yield(tid): -1 asks the scheduler's own choice; tid >=
// 0 fails unless that tid is currently runnable.
func (d *Dispatcher) Yield(tid int) int64 {
	if tid >= 0 && !d.sched.IsRunnable(tid) {
		return kerrors.Code(kerrors.New("syscall.Yield", kerrors.NotRunnable, "target tid is not runnable"))
	}
	d.sched.Yield(tid)
	return 0
}

// Deschedule implements deschedule(&reject): atomic w.r.t. a racing
// make_runnable via the reject flag (§4.E); fails if the calling thread
// is already WAITING.
func (d *Dispatcher) Deschedule(reject *int32) int64 {
	tid := d.sched.CurrentTid()
	if err := d.sched.DeschedulePolicyCheck(tid); err != nil {
		return kerrors.Code(err)
	}
	d.sched.Deschedule(reject)
	return 0
}

// MakeRunnable implements make_runnable(tid): fails unless tid is
// currently WAITING.
func (d *Dispatcher) MakeRunnable(tid int) int64 {
	status, ok := d.sched.TCBStatus(tid)
	if !ok {
		return kerrors.Code(kerrors.New("syscall.MakeRunnable", kerrors.NotFound, "unknown tid"))
	}
	if status != proc.Waiting {
		return kerrors.Code(kerrors.New("syscall.MakeRunnable", kerrors.AlreadyInState, "tid is not waiting"))
	}
	d.sched.MakeRunnable(tid)
	return 0
}

// Sleep implements sleep(ticks): ticks == 0 returns immediately.
func (d *Dispatcher) Sleep(ticks int64) int64 {
	if ticks == 0 {
		return 0
	}
	if ticks < 0 {
		return kerrors.Code(kerrors.New("syscall.Sleep", kerrors.BadPointer, "ticks must be non-negative"))
	}
	tcb := d.sched.CurrentTCB()
	if tcb == nil {
		return fatalCurrentThread("syscall.Sleep")
	}
	if err := d.sched.Sleep(tcb, uint64(ticks)); err != nil {
		return kerrors.Code(err)
	}
	return 0
}

// GetTicks implements get_ticks.
func (d *Dispatcher) GetTicks() int64 {
	return int64(d.sched.Ticks())
}

// Fork implements fork: duplicates the calling process's address space
// (copy-on-fork, every user page gets its own frame) and creates a new
// process/thread to run it, returning the child's tid to the parent. The
// hosted model has no way to literally duplicate the calling goroutine's
// own control-flow position the way a real fork resumes both parent and
// child from the same trap — childBody is the child's continuation,
// supplied by the caller, and is registered as the new TCB's goroutine
// body exactly as Bootstrap registers the idle/reaper bodies.
func (d *Dispatcher) Fork(childBody func(ctxswitch.RegisterFrame, <-chan struct{}, chan<- ctxswitch.RegisterFrame)) int64 {
	parent := d.sched.CurrentTCB()
	if parent == nil {
		return fatalCurrentThread("syscall.Fork")
	}
	childDir, err := d.vmm.DeepCopy(parent.PCB.Dir)
	if err != nil {
		return kerrors.Code(err)
	}
	_, childTCB := d.sched.AddProcess(childDir, parent.PCB.Pid)
	d.sched.RegisterBody(childTCB.Tid, childBody)
	return int64(childTCB.Tid)
}

// Exec implements exec(name, argv): replaces the calling thread's address
// space with a fresh directory holding the caller-supplied sections, then
// tears down the old user range. The named image must exist in the image
// table; its bytes are not read here. Register state reset to the new entry point is out of
// scope for the hosted model — the caller's own goroutine body continues
// running, standing in for "the next trap return lands at the new
// entry point" the way Fork's childBody stands in for fork's second
// return.
func (d *Dispatcher) Exec(name string, sections []vmm.Section) int64 {
	tcb := d.sched.CurrentTCB()
	if tcb == nil {
		return fatalCurrentThread("syscall.Exec")
	}
	if _, ok := d.images.Bytes(name); !ok {
		return kerrors.Code(kerrors.New("syscall.Exec", kerrors.NotFound, "no such executable image"))
	}

	newDir := paging.NewDirectory(d.cfg)
	if err := d.vmm.MapSections(newDir, sections); err != nil {
		return kerrors.Code(err)
	}
	if err := d.vmm.ClearUserSpace(tcb.PCB.Dir); err != nil {
		d.log.WithError(err).Warn("exec: failed to tear down previous address space")
	}
	tcb.PCB.Dir = newDir
	return 0
}

// Vanish implements vanish (§4.H): never returns. The address space is
// torn down only when this is the last live thread in the process — an
// earlier thread's vanish must not unmap memory still in use by its
// siblings.
func (d *Dispatcher) Vanish(exitStatus int32) {
	tcb := d.sched.CurrentTCB()
	if tcb == nil {
		return
	}
	if tcb.PCB.LiveThreads() == 1 {
		if err := d.vmm.ClearUserSpace(tcb.PCB.Dir); err != nil {
			d.log.WithError(err).Warn("vanish: failed to clear user address space")
		}
	}
	d.sched.Vanish(tcb, exitStatus)
}

// SetStatus implements set_status(s): stores s as the calling thread's
// exit status, to be reported to the parent on eventual vanish.
func (d *Dispatcher) SetStatus(status int32) {
	if tcb := d.sched.CurrentTCB(); tcb != nil {
		tcb.ExitStatus = status
	}
}

// Wait implements wait(&status): fails if the calling process has no
// live children.
func (d *Dispatcher) Wait() (childTid int64, exitStatus int32, code int64) {
	tcb := d.sched.CurrentTCB()
	if tcb == nil {
		return 0, 0, fatalCurrentThread("syscall.Wait")
	}
	cs, err := d.sched.Wait(tcb.PCB)
	if err != nil {
		return 0, 0, kerrors.Code(err)
	}
	return int64(cs.OriginalTid), cs.ExitStatus, 0
}

// NewPages implements new_pages(base, len): see §4.D.
func (d *Dispatcher) NewPages(base, length uint32) int64 {
	tcb := d.sched.CurrentTCB()
	if tcb == nil {
		return fatalCurrentThread("syscall.NewPages")
	}
	if err := d.vmm.NewUserPage(tcb.PCB.Dir, base, length); err != nil {
		return kerrors.Code(err)
	}
	return 0
}

// RemovePages implements remove_pages(base): fails unless base is
// exactly the start address a prior new_pages call returned.
func (d *Dispatcher) RemovePages(base uint32) int64 {
	tcb := d.sched.CurrentTCB()
	if tcb == nil {
		return fatalCurrentThread("syscall.RemovePages")
	}
	dir := tcb.PCB.Dir
	entry, err := dir.GetMapping(base)
	if err != nil {
		return kerrors.Code(err)
	}
	numPages, ok := dir.FrameRunLength(paging.FrameBase(entry))
	if !ok {
		return kerrors.Code(kerrors.New("syscall.RemovePages", kerrors.NotFound, "base is not the start of a new_pages region"))
	}
	if err := d.vmm.RemoveUserPage(dir, base, numPages*kconfig.PageSize); err != nil {
		return kerrors.Code(err)
	}
	return 0
}

// EFLAGS bits swexn's ureg validation checks, per §6 "swexn argument
// validation".
const (
	eflagsReserved = 1 << 1  // bit 1 always reads as 1
	eflagsIF       = 1 << 9  // interrupts must be enabled on resume
	eflagsIOPLMask = 3 << 12 // I/O privilege level must be 0, not 3
)

// Swexn implements swexn(esp3, eip, arg, ureg): installs or removes a
// per-thread exception handler, validating esp3/eip/ureg per §6. esp3==0
// && eip==0 means deregister only. If ureg is non-nil and passes
// validation, it is returned unchanged so the caller — running as this
// thread's own goroutine — can resume execution at that saved state
// itself (mirroring the original's "restores user-space state to it",
// which likewise never returns to the swexn call site when ureg is
// supplied).
func (d *Dispatcher) Swexn(esp3, eip, arg uint32, ureg *ctxswitch.RegisterFrame) (restore *ctxswitch.RegisterFrame, code int64) {
	tcb := d.sched.CurrentTCB()
	if tcb == nil {
		return nil, fatalCurrentThread("syscall.Swexn")
	}

	deregisterOnly := esp3 == 0 && eip == 0
	if !deregisterOnly {
		if esp3 < d.cfg.UserMemStart || eip < d.cfg.UserMemStart {
			return nil, kerrors.Code(kerrors.New("syscall.Swexn", kerrors.BadPointer, "handler stack and entry point must be in user memory"))
		}
	}

	if ureg != nil {
		if !ureg.UserMode || ureg.ESP < d.cfg.UserMemStart || ureg.EIP < d.cfg.UserMemStart {
			return nil, kerrors.Code(kerrors.New("syscall.Swexn", kerrors.BadPointer, "ureg must describe a valid user-mode frame"))
		}
		if ureg.EFLAGS&eflagsReserved == 0 || ureg.EFLAGS&eflagsIF == 0 || ureg.EFLAGS&eflagsIOPLMask != 0 {
			return nil, kerrors.Code(kerrors.New("syscall.Swexn", kerrors.BadPointer, "ureg flags register is invalid"))
		}
	}

	tcb.Handler = nil
	if !deregisterOnly {
		tcb.Handler = &proc.ExceptionHandler{EntryPoint: eip, StackTop: esp3, Arg: arg}
	}
	return ureg, 0
}

// Readline implements readline(len, buf): passthrough to the keyboard
// collaborator's readline protocol (§6).
func (d *Dispatcher) Readline(maxLen int) []byte {
	return d.keyboard.Readline(maxLen)
}

// Print implements print(len, buf): passthrough to the console
// collaborator.
func (d *Dispatcher) Print(s string) {
	d.console.Print(s)
}

// SetTermColor implements set_term_color: passthrough to the console
// collaborator's color attribute.
func (d *Dispatcher) SetTermColor(attr color.Attribute) int64 {
	d.console.SetTermColor(attr)
	return 0
}

// SetCursorPos implements set_cursor_pos.
func (d *Dispatcher) SetCursorPos(row, col int) int64 {
	if err := d.console.SetCursorPos(row, col); err != nil {
		return kerrors.Code(kerrors.New("syscall.SetCursorPos", kerrors.BadPointer, err.Error()))
	}
	return 0
}

// GetCursorPos implements get_cursor_pos.
func (d *Dispatcher) GetCursorPos() (row, col int) {
	return d.console.GetCursorPos()
}

// ReadFile implements readfile(name, buf, count, offset): passthrough to
// the program-image table.
func (d *Dispatcher) ReadFile(name string, offset, count int, buf []byte) int64 {
	n, err := d.images.GetBytes(name, offset, count, buf)
	if err != nil {
		return kerrors.Code(err)
	}
	return int64(n)
}

// Halt implements halt: ends the simulation. Idempotent — a second call
// is a no-op rather than a panic on double-close.
func (d *Dispatcher) Halt() {
	d.log.Info("halt: ending simulation")
	d.haltOnce.Do(func() {
		if d.stop != nil {
			close(d.stop)
		}
	})
}
