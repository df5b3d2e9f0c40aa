package server

import (
	"time"

	"github.com/Kufat/inspircd/irc"
	"golang.org/x/crypto/bcrypt"
)

// PrivAll in an operator block grants every privilege
const PrivAll = "*"

// Operator represents an IRC operator block
type Operator struct {
	Username   string
	Password   string // bcrypt hash
	Mask       string
	Privileges []string
	LastLogin  time.Time
}

// CheckPassword reports whether password matches the stored bcrypt hash
func (o *Operator) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(o.Password), []byte(password)) == nil
}

// MatchesHost reports whether hostmask satisfies the block's mask
func (o *Operator) MatchesHost(hostmask string) bool {
	return o.Mask == "" || irc.MatchMask(o.Mask, hostmask)
}

// HasPrivilege reports whether the block grants priv
func (o *Operator) HasPrivilege(priv string) bool {
	for _, p := range o.Privileges {
		if p == priv || p == PrivAll {
			return true
		}
	}
	return false
}

func (s *Server) loadOperators() {
	s.operators = make(map[string]*Operator, len(s.config.Operators))
	for _, op := range s.config.Operators {
		s.operators[op.Username] = &Operator{
			Username:   op.Username,
			Password:   op.Password,
			Mask:       op.Mask,
			Privileges: append([]string(nil), op.Privileges...),
		}
	}
}

// GetOperator gets an operator block by username
func (s *Server) GetOperator(username string) *Operator {
	return s.operators[username]
}

// SetOper grants or revokes operator status for a local user
func (s *Server) SetOper(u *User, op *Operator) {
	u.oper = op
	if op == nil {
		u.SendFrom(u.Nick(), "MODE", u.Nick(), "-o")
		return
	}
	op.LastLogin = time.Now()
	u.WriteNumeric(irc.RPL_YOUREOPER, "You are now an IRC operator")
	u.SendFrom(u.Nick(), "MODE", u.Nick(), "+o")
	for _, si := range s.servers {
		si.peer.UserOper(u, op.Username)
	}
}
