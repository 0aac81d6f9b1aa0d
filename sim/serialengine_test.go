package sim

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

// pingLP forwards a hop counter to its peer and accumulates a random sum.
type pingLP struct {
	Peer    LPID
	Handled int
	Sum     float64

	skipRNGReverse bool
	breakReverse   bool
}

func (p *pingLP) Handle(k Kernel, msg Msg) (Undo, error) {
	hops := msg.(int)

	prev := p.Sum
	p.Handled++
	p.Sum += k.RNG().Exponential(1)

	if hops > 0 {
		k.Schedule(p.Peer, 1, hops-1)
	}

	return prev, nil
}

func (p *pingLP) Reverse(k Kernel, msg Msg, undo Undo) {
	p.Handled--
	p.Sum = undo.(float64)

	if p.breakReverse {
		p.Sum++
	}

	if !p.skipRNGReverse {
		k.RNG().Reverse()
	}
}

func (p *pingLP) Checkpoint() any {
	return *p
}

func newPingPair(engine *SerialEngine) (*pingLP, *pingLP) {
	a := &pingLP{}
	b := &pingLP{}

	idA := engine.RegisterLP("A", a)
	idB := engine.RegisterLP("B", b)
	a.Peer = idB
	b.Peer = idA

	return a, b
}

var _ = Describe("SerialEngine", func() {
	var (
		mockCtrl *gomock.Controller
		engine   *SerialEngine
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = NewSerialEngine()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should schedule events", func() {
		handler1 := NewMockHandler(mockCtrl)
		handler2 := NewMockHandler(mockCtrl)

		lp1 := engine.RegisterLP("LP1", handler1)
		lp2 := engine.RegisterLP("LP2", handler2)

		handleEvt2 := handler2.EXPECT().
			Handle(gomock.Any(), "evt2").
			DoAndReturn(func(k Kernel, msg Msg) (Undo, error) {
				Expect(k.CurrentTime()).To(Equal(VTimeInSec(2)))
				Expect(k.Self()).To(Equal(lp2))
				k.Schedule(lp1, 1, "evt3")
				k.Schedule(lp1, 3, "evt4")
				return nil, nil
			})
		handleEvt3 := handler1.EXPECT().
			Handle(gomock.Any(), "evt3").
			Return(nil, nil).
			After(handleEvt2)
		handleEvt1 := handler1.EXPECT().
			Handle(gomock.Any(), "evt1").
			Return(nil, nil).
			After(handleEvt3)
		handler1.EXPECT().
			Handle(gomock.Any(), "evt4").
			Return(nil, nil).
			After(handleEvt1)

		engine.ScheduleInitial(lp1, 4, "evt1")
		engine.ScheduleInitial(lp2, 2, "evt2")

		Expect(engine.Run()).To(Succeed())
		Expect(engine.CurrentTime()).To(Equal(VTimeInSec(5)))
		Expect(engine.Stats().Processed).To(Equal(uint64(4)))
	})

	It("should order same-time events by source and send order", func() {
		handler := NewMockHandler(mockCtrl)
		lp := engine.RegisterLP("LP", handler)

		var order []Msg
		handler.EXPECT().
			Handle(gomock.Any(), gomock.Any()).
			DoAndReturn(func(k Kernel, msg Msg) (Undo, error) {
				order = append(order, msg)
				if msg == "start" {
					k.Schedule(lp, 1, "second")
					k.Schedule(lp, 1, "third")
				}
				return nil, nil
			}).
			AnyTimes()

		engine.ScheduleInitial(lp, 0, "start")
		engine.ScheduleInitial(lp, 1, "first")

		Expect(engine.Run()).To(Succeed())
		Expect(order).To(Equal([]Msg{"start", "first", "second", "third"}))
	})

	It("should stop at the end time", func() {
		a, b := newPingPair(engine)
		engine.WithEndTime(3.5)
		engine.ScheduleInitial(0, 0, 10)

		Expect(engine.Run()).To(Succeed())
		Expect(a.Handled + b.Handled).To(Equal(4))
		Expect(engine.HasPendingEvents()).To(BeTrue())
	})

	It("should stop at the first handler error", func() {
		handler := NewMockHandler(mockCtrl)
		lp := engine.RegisterLP("LP", handler)
		errBoom := errors.New("boom")

		handler.EXPECT().
			Handle(gomock.Any(), "bad").
			DoAndReturn(func(k Kernel, msg Msg) (Undo, error) {
				k.RNG().Unif()
				k.Schedule(lp, 1, "never")
				return nil, errBoom
			})

		engine.ScheduleInitial(lp, 1, "bad")

		err := engine.Run()
		Expect(errors.Is(err, errBoom)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("LP handling string"))
		Expect(engine.RNG(lp).Count()).To(Equal(uint64(0)))
		Expect(engine.HasPendingEvents()).To(BeFalse())
	})

	It("should panic when scheduling with a negative delay", func() {
		handler := NewMockHandler(mockCtrl)
		lp := engine.RegisterLP("LP", handler)

		handler.EXPECT().
			Handle(gomock.Any(), gomock.Any()).
			DoAndReturn(func(k Kernel, msg Msg) (Undo, error) {
				k.Schedule(lp, -1, "past")
				return nil, nil
			})

		engine.ScheduleInitial(lp, 1, "evt")

		Expect(func() { _ = engine.Run() }).To(Panic())
	})

	It("should not allow changing the seed after registration", func() {
		engine.RegisterLP("LP", NewMockHandler(mockCtrl))

		Expect(func() { engine.WithSeed(3) }).To(Panic())
	})

	It("should finalize logical processes and notify end handlers", func() {
		handler := NewMockHandler(mockCtrl)
		engine.RegisterLP("LP", handler)

		called := false
		engine.RegisterSimulationEndHandler(endHandlerFunc(func(VTimeInSec) {
			called = true
		}))

		engine.Finished()
		Expect(called).To(BeTrue())
	})

	Context("with rollback", func() {
		It("should refuse to roll back when not enabled", func() {
			newPingPair(engine)
			engine.ScheduleInitial(0, 0, 3)
			Expect(engine.Run()).To(Succeed())

			Expect(engine.Rollback(1)).NotTo(Succeed())
		})

		It("should restore the state at the rollback time", func() {
			reference := NewSerialEngine().WithRollback(0)
			refA, refB := newPingPair(reference)
			reference.ScheduleInitial(0, 0, 10)
			Expect(reference.RunUntil(2)).To(Succeed())
			stateAt2 := []any{refA.Checkpoint(), refB.Checkpoint()}

			engine.WithRollback(0)
			a, b := newPingPair(engine)
			engine.ScheduleInitial(0, 0, 10)
			Expect(engine.RunUntil(5)).To(Succeed())

			Expect(engine.Rollback(2)).To(Succeed())

			Expect([]any{a.Checkpoint(), b.Checkpoint()}).To(Equal(stateAt2))
			Expect(engine.CurrentTime()).To(Equal(VTimeInSec(2)))
			Expect(engine.Stats().RolledBack).To(Equal(uint64(3)))
			Expect(engine.RNG(0).Count() + engine.RNG(1).Count()).
				To(Equal(uint64(3)))
		})

		It("should reproduce the same run after rolling back", func() {
			reference := NewSerialEngine()
			refA, refB := newPingPair(reference)
			reference.ScheduleInitial(0, 0, 10)
			Expect(reference.Run()).To(Succeed())

			engine.WithRollback(0)
			a, b := newPingPair(engine)
			engine.ScheduleInitial(0, 0, 10)
			Expect(engine.RunUntil(7)).To(Succeed())
			Expect(engine.Rollback(1)).To(Succeed())
			Expect(engine.Run()).To(Succeed())

			Expect(a.Checkpoint()).To(Equal(refA.Checkpoint()))
			Expect(b.Checkpoint()).To(Equal(refB.Checkpoint()))
		})

		It("should not roll back past fossil-collected history", func() {
			engine.WithRollback(0)
			newPingPair(engine)
			engine.ScheduleInitial(0, 0, 10)
			Expect(engine.RunUntil(6)).To(Succeed())

			engine.FossilCollect(4)
			Expect(engine.Stats().History).To(Equal(3))
			Expect(engine.Rollback(2)).NotTo(Succeed())
			Expect(engine.Rollback(4)).To(Succeed())
		})
	})

	Context("in reverse-check mode", func() {
		BeforeEach(func() {
			engine.WithReverseCheck()
		})

		It("should run clean when reverse handlers are exact", func() {
			a, b := newPingPair(engine)
			engine.ScheduleInitial(0, 0, 20)

			Expect(engine.Run()).To(Succeed())
			Expect(a.Handled + b.Handled).To(Equal(21))
		})

		It("should panic when a reverse handler misses a field", func() {
			a, _ := newPingPair(engine)
			a.breakReverse = true
			engine.ScheduleInitial(0, 0, 2)

			Expect(func() { _ = engine.Run() }).To(Panic())
		})

		It("should panic when random draws are not undone", func() {
			a, _ := newPingPair(engine)
			a.skipRNGReverse = true
			engine.ScheduleInitial(0, 0, 2)

			Expect(func() { _ = engine.Run() }).To(Panic())
		})
	})
})

type endHandlerFunc func(now VTimeInSec)

func (f endHandlerFunc) Handle(now VTimeInSec) {
	f(now)
}
