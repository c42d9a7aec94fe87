// Package ensemble runs several independently-parameterised copies of the
// geometry network over the same input. Members are kept separate: callers
// receive one prediction per member, in member order, and decide themselves
// how to combine them.
package ensemble

import (
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/hyeh20/protein-sequence/internal/logger"
	"github.com/hyeh20/protein-sequence/internal/model"
	"github.com/hyeh20/protein-sequence/internal/tensor"
	"github.com/hyeh20/protein-sequence/internal/weights"
)

// DefaultIDs returns the standard five-member roster.
func DefaultIDs() []string {
	return []string{"a", "b", "c", "d", "e"}
}

// Member is one network in the ensemble.
type Member struct {
	ID  string
	Net *model.Network
}

// Ensemble holds the constructed members.
type Ensemble struct {
	members []Member
	log     logger.Logger
}

// New builds one network per id from the shared config and, when a
// provisioner is given, loads each member's weights. Construction is
// best-effort: members whose weights cannot be provisioned are dropped and
// their errors joined into the returned error, while the remaining members
// stay usable.
func New(cfg model.Config, ids []string, prov *weights.Provisioner, log logger.Logger) (*Ensemble, error) {
	if log == nil {
		log = logger.Default()
	}
	if len(ids) == 0 {
		ids = DefaultIDs()
	}

	var errs []error
	members := make([]Member, 0, len(ids))
	for _, id := range ids {
		memberCfg := cfg
		memberCfg.Seed = seedFor(id)
		net := model.New(memberCfg)
		if prov != nil {
			if err := prov.LoadInto(net, id); err != nil {
				log.Warn("ensemble member unavailable", "model", id, "error", err)
				errs = append(errs, fmt.Errorf("member %s: %w", id, err))
				continue
			}
		}
		members = append(members, Member{ID: id, Net: net})
	}

	if len(members) == 0 {
		errs = append(errs, errors.New("ensemble: no usable members"))
		return nil, errors.Join(errs...)
	}
	log.Info("ensemble ready", "members", len(members), "requested", len(ids))
	return &Ensemble{members: members, log: log}, errors.Join(errs...)
}

// Members returns the usable members in construction order.
func (e *Ensemble) Members() []Member {
	return e.members
}

// Size returns the number of usable members.
func (e *Ensemble) Size() int {
	return len(e.members)
}

// Forward evaluates every member on x and returns one prediction per member,
// in member order.
func (e *Ensemble) Forward(x *tensor.Tensor) ([]*model.Prediction, error) {
	preds := make([]*model.Prediction, 0, len(e.members))
	for _, m := range e.members {
		p, err := m.Net.Forward(x)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", m.ID, err)
		}
		preds = append(preds, p)
	}
	return preds, nil
}

// seedFor derives a stable per-member seed from the member id, so identical
// rosters reproduce identical initialisations.
func seedFor(id string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return int64(h.Sum64())
}
