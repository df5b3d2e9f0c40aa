package restrictmsg

import (
	"github.com/Kufat/inspircd/metrics"
)

// Party is a user taking part in a direct message
type Party interface {
	UUID() string
	IsLocal() bool
	IsOper() bool
	IsULined() bool
}

// AccountOracle answers whether users are logged in. Available is false
// when no account system is loaded.
type AccountOracle interface {
	Available() bool
	IsRegistered(u Party) bool
}

// Rule names the check that admitted a message
type Rule int

const (
	// RuleNone means no rule matched and the message was rejected
	RuleNone Rule = iota
	RuleRemoteSender
	RuleRecipientOper
	RuleSenderOper
	RuleRecipientULine
	RuleOracleUnavailable
	RuleSenderRegistered
	RuleReply
)

var ruleNames = map[Rule]string{
	RuleNone:              "none",
	RuleRemoteSender:      "remote_sender",
	RuleRecipientOper:     "recipient_oper",
	RuleSenderOper:        "sender_oper",
	RuleRecipientULine:    "recipient_uline",
	RuleOracleUnavailable: "oracle_unavailable",
	RuleSenderRegistered:  "sender_registered",
	RuleReply:             "reply",
}

func (r Rule) String() string {
	if name, ok := ruleNames[r]; ok {
		return name
	}
	return "unknown"
}

// Decision is the outcome of one admission check
type Decision struct {
	Allowed bool
	Rule    Rule
	// Granted is set when the sender was added to the recipient's list
	Granted bool
}

// Engine decides whether a direct message may be delivered
type Engine struct {
	list     *AllowListExt
	accounts AccountOracle
}

// NewEngine creates an engine over list and accounts
func NewEngine(list *AllowListExt, accounts AccountOracle) *Engine {
	return &Engine{list: list, accounts: accounts}
}

// Decide checks a message from sender to recipient and, when it is
// admitted, records the sender on an unregistered recipient's list so the
// recipient can reply
func (e *Engine) Decide(sender, recipient Party) Decision {
	d := Decision{Rule: e.admit(sender, recipient)}
	d.Allowed = d.Rule != RuleNone

	if d.Allowed && e.grants(sender, recipient) {
		d.Granted = e.list.Grant(recipient, sender.UUID())
		if d.Granted {
			metrics.AllowListGrants.Inc()
		}
	}

	result := "deny"
	if d.Allowed {
		result = "allow"
	}
	metrics.AdmissionDecisions.WithLabelValues(result, d.Rule.String()).Inc()
	return d
}

func (e *Engine) admit(sender, recipient Party) Rule {
	// Checked on the sender's own server already
	if !sender.IsLocal() {
		return RuleRemoteSender
	}

	switch {
	case recipient.IsOper():
		return RuleRecipientOper
	case sender.IsOper():
		return RuleSenderOper
	case recipient.IsULined():
		return RuleRecipientULine
	case !e.accounts.Available():
		return RuleOracleUnavailable
	case e.accounts.IsRegistered(sender):
		return RuleSenderRegistered
	case e.list.Contains(sender, recipient.UUID()):
		// The recipient messaged the sender first
		return RuleReply
	}
	return RuleNone
}

func (e *Engine) grants(sender, recipient Party) bool {
	return recipient.IsLocal() &&
		!recipient.IsULined() &&
		!sender.IsULined() &&
		e.accounts.Available() &&
		!e.accounts.IsRegistered(recipient)
}
