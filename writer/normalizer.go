package writer

import (
	"time"

	"github.com/bddrunner/cucumber/event"
	"github.com/bddrunner/cucumber/gherkin"
)

// queueState is a node's emission state, per spec §4.6.
type queueState int

const (
	stateNotFinished queueState = iota
	stateFinishedButNotEmitted
	stateFinishedAndEmitted
)

type bufferedEvent struct {
	se event.ScenarioEvent
	at time.Time
}

// scenarioQueue buffers one scenario attempt's events in arrival order.
type scenarioQueue struct {
	scenario gherkin.Scenario
	retries  *event.Retries
	events   []bufferedEvent
}

type childKind int

const (
	childRule childKind = iota
	childScenario
)

// child is a node in a featureQueue's FIFO: either a Rule subtree or a bare
// scenario attempt (spec §4.6's "Either<Rule, (Scenario, Retries?)>").
type child struct {
	kind     childKind
	rule     *ruleQueue
	scenario *scenarioQueue
}

type ruleQueue struct {
	rule      gherkin.Rule
	initial   bool
	state     queueState
	scenarios []*scenarioQueue
}

type featureQueue struct {
	feature  gherkin.Feature
	initial  bool
	state    queueState
	children []*child
}

// Normalizer implements the event normalizer (C6): it buffers the raw,
// possibly-interleaved event stream produced by concurrently running
// scenarios into per-feature/per-rule/per-scenario FIFOs, and releases them
// to the inner writer in an order consistent with a single-threaded
// execution (spec §4.6).
type Normalizer struct {
	inner Writer

	order    []gherkin.ID
	features map[gherkin.ID]*featureQueue

	ruleIndex     map[ruleKey]*ruleQueue
	scenarioIndex map[gherkin.ID]*scenarioQueue

	done bool
}

type ruleKey struct {
	feature gherkin.ID
	rule    gherkin.ID
}

// Normalize wraps inner with the event normalizer.
func Normalize(inner Writer) *Normalizer {
	return &Normalizer{
		inner:         inner,
		features:      make(map[gherkin.ID]*featureQueue),
		ruleIndex:     make(map[ruleKey]*ruleQueue),
		scenarioIndex: make(map[gherkin.ID]*scenarioQueue),
	}
}

func (n *Normalizer) HandleEvent(ev event.Cucumber) {
	if n.done {
		n.inner.HandleEvent(ev)
		return
	}

	switch ev.Kind {
	case event.CucumberStarted, event.CucumberParsingFinished:
		n.inner.HandleEvent(ev)
		return
	case event.CucumberFinished:
		n.pump()
		n.inner.HandleEvent(ev)
		n.done = true
		return
	case event.CucumberFeature:
		n.ingestFeature(ev)
	}
	n.pump()
}

func (n *Normalizer) ensureFeature(f gherkin.Feature) *featureQueue {
	id := f.ID()
	fq, ok := n.features[id]
	if !ok {
		fq = &featureQueue{feature: f, initial: true, state: stateNotFinished}
		n.features[id] = fq
		n.order = append(n.order, id)
	}
	return fq
}

func (n *Normalizer) ingestFeature(ev event.Cucumber) {
	fq := n.ensureFeature(ev.Feature)
	switch ev.FeatureEv.Kind {
	case event.FeatureStarted:
		// node creation already handled by ensureFeature
	case event.FeatureFinished:
		fq.state = stateFinishedButNotEmitted
	case event.FeatureRule:
		n.ingestRule(ev, fq)
	case event.FeatureScenario:
		n.ingestScenario(fq, nil, ev.FeatureEv.Scenario, ev.FeatureEv.Inner, ev.Timestamp, &fq.children)
	}
}

func (n *Normalizer) ingestRule(ev event.Cucumber, fq *featureQueue) {
	key := ruleKey{feature: ev.Feature.ID(), rule: ev.FeatureEv.Rule.ID()}
	switch ev.FeatureEv.RuleEv.Kind {
	case event.RuleStarted:
		rq := &ruleQueue{rule: ev.FeatureEv.Rule, initial: true, state: stateNotFinished}
		n.ruleIndex[key] = rq
		fq.children = append(fq.children, &child{kind: childRule, rule: rq})
	case event.RuleFinished:
		if rq, ok := n.ruleIndex[key]; ok {
			rq.state = stateFinishedButNotEmitted
		}
	case event.RuleScenario:
		rq, ok := n.ruleIndex[key]
		if !ok {
			return
		}
		n.ingestScenario(fq, rq, ev.FeatureEv.RuleEv.Scenario, ev.FeatureEv.RuleEv.Inner, ev.Timestamp, nil)
	}
}

// ingestScenario routes one RetryableScenario event into the currently open
// attempt for its scenario, creating a new attempt node on Started and
// appending it either to parentChildren (feature-direct scenario) or to
// rq.scenarios (rule-scoped scenario).
func (n *Normalizer) ingestScenario(fq *featureQueue, rq *ruleQueue, s gherkin.Scenario, rs event.RetryableScenario, ts time.Time, parentChildren *[]*child) {
	id := s.ID()
	if rs.Inner.Kind == event.ScenarioStarted {
		sq := &scenarioQueue{scenario: s, retries: rs.Retries}
		n.scenarioIndex[id] = sq
		if rq != nil {
			rq.scenarios = append(rq.scenarios, sq)
		} else {
			*parentChildren = append(*parentChildren, &child{kind: childScenario, scenario: sq})
		}
	}

	sq, ok := n.scenarioIndex[id]
	if !ok {
		return
	}
	sq.events = append(sq.events, bufferedEvent{se: rs.Inner, at: ts})
	if rs.Inner.Kind == event.ScenarioFinished {
		delete(n.scenarioIndex, id)
	}
}

// pump drains every feature queue as far as the buffered events allow,
// implementing spec §4.6's emission algorithm.
func (n *Normalizer) pump() {
	for len(n.order) > 0 {
		id := n.order[0]
		fq := n.features[id]

		if fq.initial {
			n.inner.HandleEvent(event.Cucumber{Kind: event.CucumberFeature, Feature: fq.feature, FeatureEv: event.FeatureEvent{Kind: event.FeatureStarted}})
			fq.initial = false
		}

		n.drainChildren(fq)

		if fq.state == stateFinishedButNotEmitted && len(fq.children) == 0 {
			n.inner.HandleEvent(event.Cucumber{Kind: event.CucumberFeature, Feature: fq.feature, FeatureEv: event.FeatureEvent{Kind: event.FeatureFinished}})
			n.order = n.order[1:]
			delete(n.features, id)
			continue
		}
		break
	}
}

func (n *Normalizer) drainChildren(fq *featureQueue) {
children:
	for len(fq.children) > 0 {
		c := fq.children[0]
		switch c.kind {
		case childRule:
			rq := c.rule
			if rq.initial {
				n.emitRule(fq, rq, event.RuleStarted)
				rq.initial = false
			}
			if !n.drainRuleScenarios(fq, rq) {
				return
			}
			if rq.state == stateFinishedButNotEmitted && len(rq.scenarios) == 0 {
				n.emitRule(fq, rq, event.RuleFinished)
				fq.children = fq.children[1:]
				delete(n.ruleIndex, ruleKey{feature: fq.feature.ID(), rule: rq.rule.ID()})
				continue children
			}
			return
		case childScenario:
			sq := c.scenario
			for len(sq.events) > 0 {
				be := sq.events[0]
				sq.events = sq.events[1:]
				n.emitFeatureScenario(fq, sq, be)
				if be.se.Kind == event.ScenarioFinished {
					fq.children = fq.children[1:]
					continue children
				}
			}
			return
		}
	}
}

// drainRuleScenarios drains rq's scenario FIFO as far as buffered events
// allow, returning false if it is blocked (front scenario has no more
// buffered events and is not finished).
func (n *Normalizer) drainRuleScenarios(fq *featureQueue, rq *ruleQueue) bool {
scenarios:
	for len(rq.scenarios) > 0 {
		sq := rq.scenarios[0]
		for len(sq.events) > 0 {
			be := sq.events[0]
			sq.events = sq.events[1:]
			n.emitRuleScenario(fq, rq, sq, be)
			if be.se.Kind == event.ScenarioFinished {
				rq.scenarios = rq.scenarios[1:]
				continue scenarios
			}
		}
		return false
	}
	return true
}

func (n *Normalizer) emitRule(fq *featureQueue, rq *ruleQueue, kind event.RuleEventKind) {
	n.inner.HandleEvent(event.Cucumber{Kind: event.CucumberFeature, Feature: fq.feature, FeatureEv: event.FeatureEvent{
		Kind: event.FeatureRule, Rule: rq.rule, RuleEv: event.RuleEvent{Kind: kind},
	}})
}

func (n *Normalizer) emitRuleScenario(fq *featureQueue, rq *ruleQueue, sq *scenarioQueue, be bufferedEvent) {
	n.inner.HandleEvent(event.Cucumber{
		Kind: event.CucumberFeature, Feature: fq.feature, Timestamp: be.at,
		FeatureEv: event.FeatureEvent{
			Kind: event.FeatureRule, Rule: rq.rule,
			RuleEv: event.RuleEvent{Kind: event.RuleScenario, Scenario: sq.scenario, Inner: event.RetryableScenario{Inner: be.se, Retries: sq.retries}},
		},
	})
}

func (n *Normalizer) emitFeatureScenario(fq *featureQueue, sq *scenarioQueue, be bufferedEvent) {
	n.inner.HandleEvent(event.Cucumber{
		Kind: event.CucumberFeature, Feature: fq.feature, Timestamp: be.at,
		FeatureEv: event.FeatureEvent{
			Kind: event.FeatureScenario, Scenario: sq.scenario, Inner: event.RetryableScenario{Inner: be.se, Retries: sq.retries},
		},
	})
}
