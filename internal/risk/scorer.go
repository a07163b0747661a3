// Package risk computes anomaly assessments for outstanding sessions. The
// scorer is a pure function of the stored session context and the calling
// request's context; it performs no I/O and keeps no state.
//
// The weights are deliberately lenient: network and device drift are normal
// user behavior (phone to laptop, home to office), so only stale sessions
// and known attack-tool signatures score high.
package risk

import (
	"fmt"
	"strings"
	"time"

	"github.com/mileusna/useragent"

	"github.com/kuth-chi/eductionhub-sessions/internal/model"
)

// Risk levels, most to least severe.
const (
	LevelHigh    = "HIGH"
	LevelMedium  = "MEDIUM"
	LevelLow     = "LOW"
	LevelVeryLow = "VERY LOW"
	LevelMinimal = "MINIMAL"
)

// Policy is the scoring table. It is configuration, not business law: the
// constants below mirror the values the scoring was originally tuned to,
// and deployments may override the signature lists.
type Policy struct {
	AgeOver90Days int
	AgeOver60Days int
	AgeOver30Days int

	SubnetDrift   int // stored vs current /24 differ
	ProviderDrift int // additionally, /16 differ

	OSDrift      int
	BrowserDrift int
	DeviceDrift  int

	HighRiskSignature     int
	ModerateRiskSignature int
	HighRiskAgents        []string
	ModerateRiskAgents    []string

	// FallbackScore is used when the stored context is unusable; scoring
	// must degrade, never fail an enumeration.
	FallbackScore int
}

// DefaultPolicy returns the tuned scoring table.
func DefaultPolicy() Policy {
	return Policy{
		AgeOver90Days: 15,
		AgeOver60Days: 8,
		AgeOver30Days: 3,

		SubnetDrift:   2,
		ProviderDrift: 5,

		OSDrift:      1,
		BrowserDrift: 1,
		DeviceDrift:  2,

		HighRiskSignature:     25,
		ModerateRiskSignature: 5,
		HighRiskAgents: []string{
			"sqlmap", "nikto", "nmap", "masscan", "exploit", "hack", "attack",
		},
		ModerateRiskAgents: []string{
			"bot", "crawler", "spider", "automated", "curl", "wget", "python-requests",
		},

		FallbackScore: 2,
	}
}

// Components breaks an assessment down by contribution.
type Components struct {
	Age       int `json:"age"`
	Network   int `json:"network"`
	Agent     int `json:"agent"`
	Signature int `json:"signature"`
}

// Location is a coarse, offline approximation from the network address.
type Location struct {
	Country string `json:"country"`
	Region  string `json:"region"`
	City    string `json:"city"`
	IP      string `json:"ip,omitempty"`
}

// Assessment is the derived risk view of one session. It is computed fresh
// per enumeration and never persisted.
type Assessment struct {
	Score          int        `json:"riskScore"`
	Level          string     `json:"riskLevel"`
	Components     Components `json:"components"`
	Location       Location   `json:"location"`
	Duration       string     `json:"sessionDuration"`
	CurrentSession bool       `json:"isCurrentSession"`
}

// Score assesses a stored session against the requesting context.
// Deterministic given its inputs; malformed stored context degrades to the
// policy's fallback score.
func (p Policy) Score(rec model.SessionRecord, current model.ClientContext, now time.Time) Assessment {
	a := Assessment{
		Location:       Locate(rec.IPAddress),
		Duration:       humanDuration(rec.IssuedAt, now),
		CurrentSession: rec.IPAddress == current.IPAddress && rec.UserAgent == current.UserAgent,
	}

	if rec.IssuedAt.IsZero() && rec.IPAddress == "" && rec.UserAgent == "" {
		a.Score = p.FallbackScore
		a.Level = levelFor(a.Score)
		return a
	}

	a.Components.Age = p.ageComponent(rec.IssuedAt, now)
	a.Components.Network = p.networkComponent(rec.IPAddress, current.IPAddress)
	a.Components.Agent = p.agentComponent(rec.UserAgent, current.UserAgent)
	a.Components.Signature = p.signatureComponent(rec.UserAgent)

	score := a.Components.Age + a.Components.Network + a.Components.Agent + a.Components.Signature
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	a.Score = score
	a.Level = levelFor(score)
	return a
}

func (p Policy) ageComponent(issuedAt, now time.Time) int {
	if issuedAt.IsZero() {
		return 0
	}
	age := now.Sub(issuedAt)
	switch {
	case age > 90*24*time.Hour:
		return p.AgeOver90Days
	case age > 60*24*time.Hour:
		return p.AgeOver60Days
	case age > 30*24*time.Hour:
		return p.AgeOver30Days
	default:
		return 0
	}
}

func (p Policy) networkComponent(stored, current string) int {
	if stored == "" || current == "" {
		return 0
	}
	storedOctets := strings.Split(stored, ".")
	currentOctets := strings.Split(current, ".")
	if len(storedOctets) < 3 || len(currentOctets) < 3 {
		// Not dotted-quad (IPv6 or garbage); skip the comparison rather
		// than fail the enumeration.
		return 0
	}
	if equalPrefix(storedOctets, currentOctets, 3) {
		return 0
	}
	score := p.SubnetDrift
	if !equalPrefix(storedOctets, currentOctets, 2) {
		score += p.ProviderDrift
	}
	return score
}

func (p Policy) agentComponent(stored, current string) int {
	if stored == "" || current == "" {
		return 0
	}
	storedUA := useragent.Parse(stored)
	currentUA := useragent.Parse(current)

	score := 0
	if storedUA.OS != currentUA.OS {
		score += p.OSDrift
	}
	if storedUA.Name != currentUA.Name {
		score += p.BrowserDrift
	}
	if storedUA.Device != currentUA.Device {
		score += p.DeviceDrift
	}
	return score
}

func (p Policy) signatureComponent(storedUA string) int {
	if storedUA == "" {
		return 0
	}
	lower := strings.ToLower(storedUA)
	for _, pattern := range p.HighRiskAgents {
		if strings.Contains(lower, pattern) {
			return p.HighRiskSignature
		}
	}
	for _, pattern := range p.ModerateRiskAgents {
		if strings.Contains(lower, pattern) {
			return p.ModerateRiskSignature
		}
	}
	return 0
}

func levelFor(score int) string {
	switch {
	case score >= 50:
		return LevelHigh
	case score >= 25:
		return LevelMedium
	case score >= 10:
		return LevelLow
	case score >= 3:
		return LevelVeryLow
	default:
		return LevelMinimal
	}
}

func equalPrefix(a, b []string, n int) bool {
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Locate gives a coarse offline location classification. Real geo lookup is
// a display concern outside this subsystem.
func Locate(ip string) Location {
	switch {
	case ip == "":
		return Location{Country: "Unknown", Region: "Unknown", City: "Unknown"}
	case strings.HasPrefix(ip, "127."):
		return Location{Country: "Localhost", Region: "Local", City: "127.0.0.1"}
	case strings.HasPrefix(ip, "192.168.") || strings.HasPrefix(ip, "10.") || strings.HasPrefix(ip, "172."):
		return Location{Country: "Local Network", Region: "Private", City: "LAN"}
	default:
		return Location{Country: "Unknown", Region: "Unknown", City: "Unknown", IP: ip}
	}
}

func humanDuration(issuedAt, now time.Time) string {
	if issuedAt.IsZero() || now.Before(issuedAt) {
		return "Unknown"
	}
	d := now.Sub(issuedAt)
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%s, %s", plural(days, "day"), plural(hours, "hour"))
	case hours > 0:
		return fmt.Sprintf("%s, %s", plural(hours, "hour"), plural(minutes, "minute"))
	default:
		return plural(minutes, "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
