// Package resolver supplies the default ModuleResolver: a straightforward
// greedy namespace/attribute matcher over capabilities and requirements.
// Constraint solving proper is out of scope for this container, which
// treats the resolver as an external collaborator specified only by its
// interface; this default is the simplest pure function that satisfies
// that contract.
package resolver

import (
	"context"
	"fmt"

	"github.com/GoCodeAlone/containerkit/container"
)

// Greedy is the default ModuleResolver.
type Greedy struct{}

func New() *Greedy { return &Greedy{} }

// ResolveDelta matches every requirement of every unresolved trigger (and
// transitively, every requirement of a revision first pulled in to satisfy
// one) against the capabilities on offer across triggers and unresolved,
// producing one ModuleWiring per newly satisfied revision. A trigger with an
// unmatched requirement is skipped when triggersMandatory is false and
// fails the whole resolve when true.
func (g *Greedy) ResolveDelta(
	ctx context.Context,
	triggers []*container.ModuleRevision,
	triggersMandatory bool,
	unresolved []*container.ModuleRevision,
	wirings map[*container.ModuleRevision]*container.ModuleWiring,
	db container.ModuleDatabase,
) (map[*container.ModuleRevision]*container.ModuleWiring, error) {
	candidates := dedupeRevisions(append(append([]*container.ModuleRevision{}, triggers...), unresolved...))
	delta := make(map[*container.ModuleRevision]*container.ModuleWiring)

	resolvedNow := make(map[*container.ModuleRevision]bool)
	for rev := range wirings {
		resolvedNow[rev] = true
	}

	changed := true
	for changed {
		changed = false
		for _, rev := range candidates {
			if resolvedNow[rev] || delta[rev] != nil {
				continue
			}
			w, ok := tryResolveOne(rev, candidates, wirings, delta)
			if !ok {
				continue
			}
			delta[rev] = w
			resolvedNow[rev] = true
			changed = true
		}
	}

	if triggersMandatory {
		for _, t := range triggers {
			if !resolvedNow[t] {
				return nil, fmt.Errorf("%w: mandatory trigger %s unsatisfied", container.ErrResolution, t.SymbolicName)
			}
		}
	}

	return delta, nil
}

// ResolveDynamicDelta attempts to satisfy exactly one requirement
// dynamically, wiring revision to a provider drawn from candidates already
// present in wirings.
func (g *Greedy) ResolveDynamicDelta(
	ctx context.Context,
	requirement container.Requirement,
	revision *container.ModuleRevision,
	wirings map[*container.ModuleRevision]*container.ModuleWiring,
	db container.ModuleDatabase,
) (map[*container.ModuleRevision]*container.ModuleWiring, error) {
	for provider, w := range wirings {
		if w == nil || w.IsInvalidated() {
			continue
		}
		for _, cap := range provider.Capabilities {
			if cap.Namespace != requirement.Namespace {
				continue
			}
			if requirement.Matches != nil && !requirement.Matches(cap) {
				continue
			}
			wire := &container.ModuleWire{
				Namespace:   requirement.Namespace,
				Requirer:    revision,
				Requirement: requirement,
				Provider:    provider,
				Capability:  cap,
			}
			target, ok := wirings[revision]
			if !ok || target == nil {
				target = container.NewModuleWiring(revision)
			}
			out := map[*container.ModuleRevision]*container.ModuleWiring{
				revision: target,
				provider: w,
			}
			out[revision].AddRequiredWire(wire)
			out[provider].AddProvidedWire(wire)
			return out, nil
		}
	}
	return nil, nil
}

func tryResolveOne(
	rev *container.ModuleRevision,
	candidates []*container.ModuleRevision,
	wirings map[*container.ModuleRevision]*container.ModuleWiring,
	delta map[*container.ModuleRevision]*container.ModuleWiring,
) (*container.ModuleWiring, bool) {
	w := container.NewModuleWiring(rev)
	var required []*container.ModuleWire

	for _, req := range rev.Requirements {
		provider, cap, found := findProvider(req, candidates, wirings, delta)
		if !found {
			return nil, false
		}
		required = append(required, &container.ModuleWire{
			Namespace:   req.Namespace,
			Requirer:    rev,
			Requirement: req,
			Provider:    provider,
			Capability:  cap,
		})
	}

	for _, wire := range required {
		w.AddRequiredWire(wire)
		providerWiring := wirings[wire.Provider]
		if providerWiring == nil {
			providerWiring = delta[wire.Provider]
		}
		if providerWiring != nil {
			providerWiring.AddProvidedWire(wire)
		}
	}
	return w, true
}

func findProvider(
	req container.Requirement,
	candidates []*container.ModuleRevision,
	wirings map[*container.ModuleRevision]*container.ModuleWiring,
	delta map[*container.ModuleRevision]*container.ModuleWiring,
) (*container.ModuleRevision, container.Capability, bool) {
	for _, cand := range candidates {
		for _, cap := range cand.Capabilities {
			if cap.Namespace != req.Namespace {
				continue
			}
			if req.Matches != nil && !req.Matches(cap) {
				continue
			}
			if wirings[cand] == nil && delta[cand] == nil && cand != nil {
				// candidate itself must already be resolved or about to be;
				// the outer fixed-point loop retries until this holds.
				continue
			}
			return cand, cap, true
		}
	}
	return nil, container.Capability{}, false
}

func dedupeRevisions(in []*container.ModuleRevision) []*container.ModuleRevision {
	seen := make(map[*container.ModuleRevision]bool, len(in))
	out := make([]*container.ModuleRevision, 0, len(in))
	for _, rev := range in {
		if rev == nil || seen[rev] {
			continue
		}
		seen[rev] = true
		out = append(out, rev)
	}
	return out
}
