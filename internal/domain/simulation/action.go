// Package simulation defines the core value types that flow through the tick engine.
// This package is PURE and must NOT import any infrastructure packages (network, events, platform).
package simulation

import (
	"strings"
	"time"
)

// Domain tags an action with the part of the simulation it belongs to.
type Domain string

const (
	DomainCharacter          Domain = "character"
	DomainEconomicIndividual Domain = "economic:individual"
	DomainEconomicBusiness   Domain = "economic:business"
	DomainSocialCultural     Domain = "social:cultural"
	DomainSocialPolitical    Domain = "social:political"
	DomainMilitary           Domain = "military"
)

// KnownDomains lists the domains the default routing table covers, in routing order.
func KnownDomains() []Domain {
	return []Domain{
		DomainCharacter,
		DomainEconomicIndividual,
		DomainEconomicBusiness,
		DomainSocialCultural,
		DomainSocialPolitical,
		DomainMilitary,
	}
}

// Tier returns the part before the colon ("economic" for "economic:business").
func (d Domain) Tier() string {
	tier, _, _ := strings.Cut(string(d), ":")
	return tier
}

// Action is a unit of work submitted to the engine.
// Immutable once enqueued: the engine copies it and never hands out pointers.
type Action struct {
	ID             string         `json:"id"`
	Kind           string         `json:"kind"`     // "trade", "migrate", "declare_war"...
	Domain         Domain         `json:"domain"`   // Routing key
	Category       string         `json:"category"` // Free-form grouping inside a domain
	SubjectID      string         `json:"subject_id"`
	TargetID       string         `json:"target_id,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	EnqueuedAtTick uint64         `json:"enqueued_at_tick"`
	SubmittedAt    time.Time      `json:"submitted_at"`
}
