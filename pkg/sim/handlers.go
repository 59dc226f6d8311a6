package sim

import (
	"context"
	"fmt"

	"github.com/goclaw/dayloop/pkg/logger"
	"github.com/goclaw/dayloop/pkg/plan"
)

// handlers carries out actions for one actor. Every handler spends its
// game time first and changes the world only if it was not interrupted.
type handlers struct {
	world  *World
	actor  string
	logger logger.Logger
}

func (h *handlers) move(ctx context.Context, p plan.Params) error {
	mp, err := paramsOf[plan.MoveParams](p)
	if err != nil {
		return err
	}
	_, err = h.world.MoveTo(ctx, h.actor, mp.Destination)
	return err
}

func (h *handlers) talk(ctx context.Context, p plan.Params) error {
	tp, err := paramsOf[plan.TalkParams](p)
	if err != nil {
		return err
	}
	if err := h.world.spend(ctx, plan.KindTalk); err != nil {
		return err
	}
	return h.world.apply(ctx, h.actor, func(s *ActorState) error {
		s.meet(tp.Target)
		h.logger.Debug("talked", "target", tp.Target, "message", tp.Message)
		return nil
	})
}

func (h *handlers) putDown(ctx context.Context, p plan.Params) error {
	pp, err := paramsOf[plan.PutDownParams](p)
	if err != nil {
		return err
	}
	if err := h.world.spend(ctx, plan.KindPutDown); err != nil {
		return err
	}
	return h.world.apply(ctx, h.actor, func(s *ActorState) error {
		if !s.take(pp.Item) {
			return fmt.Errorf("put down %q: %w", pp.Item, ErrNotHolding)
		}
		where := pp.Location
		if where == "" {
			where = s.Location
		}
		h.world.placed[where] = append(h.world.placed[where], pp.Item)
		return nil
	})
}

func (h *handlers) giveMoney(ctx context.Context, p plan.Params) error {
	gp, err := paramsOf[plan.GiveMoneyParams](p)
	if err != nil {
		return err
	}
	if err := h.world.spend(ctx, plan.KindGiveMoney); err != nil {
		return err
	}
	return h.world.apply(ctx, h.actor, func(s *ActorState) error {
		if s.Money < gp.Amount {
			return fmt.Errorf("give %d to %s: %w", gp.Amount, gp.Target, ErrInsufficientFunds)
		}
		s.Money -= gp.Amount
		h.world.stateLocked(gp.Target).Money += gp.Amount
		return nil
	})
}

func (h *handlers) giveItem(ctx context.Context, p plan.Params) error {
	gp, err := paramsOf[plan.GiveItemParams](p)
	if err != nil {
		return err
	}
	if err := h.world.spend(ctx, plan.KindGiveItem); err != nil {
		return err
	}
	return h.world.apply(ctx, h.actor, func(s *ActorState) error {
		if !s.take(gp.Item) {
			return fmt.Errorf("give %q to %s: %w", gp.Item, gp.Target, ErrNotHolding)
		}
		recv := h.world.stateLocked(gp.Target)
		recv.Items = append(recv.Items, gp.Item)
		return nil
	})
}

func (h *handlers) examine(ctx context.Context, p plan.Params) error {
	ep, err := paramsOf[plan.ExamineParams](p)
	if err != nil {
		return err
	}
	if err := h.world.spend(ctx, plan.KindExamine); err != nil {
		return err
	}
	h.logger.Debug("examined", "target", ep.Target)
	return nil
}

func (h *handlers) notify(ctx context.Context, kind plan.ActionKind, n Notice) error {
	if err := h.world.spend(ctx, kind); err != nil {
		return err
	}
	return h.world.apply(ctx, h.actor, func(*ActorState) error {
		n.From = h.actor
		n.At = h.world.clock.Time()
		h.world.notices = append(h.world.notices, n)
		return nil
	})
}

func (h *handlers) notifyReceptionist(ctx context.Context, p plan.Params) error {
	np, err := paramsOf[plan.NotifyReceptionistParams](p)
	if err != nil {
		return err
	}
	return h.notify(ctx, plan.KindNotifyReceptionist, Notice{To: "receptionist", Message: np.Message})
}

func (h *handlers) notifyDoctor(ctx context.Context, p plan.Params) error {
	np, err := paramsOf[plan.NotifyDoctorParams](p)
	if err != nil {
		return err
	}
	return h.notify(ctx, plan.KindNotifyDoctor, Notice{To: "doctor", Patient: np.Patient, Message: np.Message})
}

func (h *handlers) prepareMenu(ctx context.Context, p plan.Params) error {
	mp, err := paramsOf[plan.PrepareMenuParams](p)
	if err != nil {
		return err
	}
	if err := h.world.spend(ctx, plan.KindPrepareMenu); err != nil {
		return err
	}
	return h.world.apply(ctx, h.actor, func(s *ActorState) error {
		s.Menu = append([]string(nil), mp.Items...)
		return nil
	})
}

func (h *handlers) cook(ctx context.Context, p plan.Params) error {
	cp, err := paramsOf[plan.CookParams](p)
	if err != nil {
		return err
	}
	if err := h.world.spend(ctx, plan.KindCook); err != nil {
		return err
	}
	return h.world.apply(ctx, h.actor, func(s *ActorState) error {
		s.Items = append(s.Items, cp.Dish)
		return nil
	})
}

func (h *handlers) wait(ctx context.Context, p plan.Params) error {
	wp, err := paramsOf[plan.WaitParams](p)
	if err != nil {
		return err
	}
	return h.world.clock.Delay(ctx, wp.Minutes)
}

func (h *handlers) payment(ctx context.Context, p plan.Params) error {
	pp, err := paramsOf[plan.PaymentParams](p)
	if err != nil {
		return err
	}
	if err := h.world.spend(ctx, plan.KindPayment); err != nil {
		return err
	}
	return h.world.apply(ctx, h.actor, func(s *ActorState) error {
		if s.Money < pp.Amount {
			return fmt.Errorf("pay %d to %s: %w", pp.Amount, pp.Target, ErrInsufficientFunds)
		}
		s.Money -= pp.Amount
		h.world.stateLocked(pp.Target).Money += pp.Amount
		if pp.Item != "" {
			s.Items = append(s.Items, pp.Item)
		}
		return nil
	})
}
