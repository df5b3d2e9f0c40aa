package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/Kufat/inspircd/irc"
	"github.com/Kufat/inspircd/metrics"
	"github.com/rs/zerolog/log"
)

// XLine is a network ban. Only Z-lines (IP masks) are implemented.
type XLine struct {
	Mask     string
	Reason   string
	Source   string
	SetAt    time.Time
	Duration time.Duration // zero means permanent
}

// Expired reports whether the line has run out at now
func (x *XLine) Expired(now time.Time) bool {
	return x.Duration > 0 && now.After(x.SetAt.Add(x.Duration))
}

// AddZLine adds an IP ban. It returns false when an active line with the
// same mask already exists.
func (s *Server) AddZLine(duration time.Duration, source, reason, ipmask string) bool {
	s.expireZLines()
	for _, zl := range s.zlines {
		if strings.EqualFold(zl.Mask, ipmask) {
			return false
		}
	}

	s.zlines = append(s.zlines, &XLine{
		Mask:     ipmask,
		Reason:   reason,
		Source:   source,
		SetAt:    time.Now(),
		Duration: duration,
	})
	metrics.ZLines.WithLabelValues(source).Inc()
	log.Info().
		Str("mask", ipmask).
		Str("source", source).
		Dur("duration", duration).
		Str("reason", reason).
		Msg("added Z-line")
	return true
}

// DelZLine removes the IP ban on ipmask
func (s *Server) DelZLine(ipmask string) bool {
	for i, zl := range s.zlines {
		if strings.EqualFold(zl.Mask, ipmask) {
			s.zlines = append(s.zlines[:i], s.zlines[i+1:]...)
			return true
		}
	}
	return false
}

// ZLines returns the active IP bans
func (s *Server) ZLines() []XLine {
	s.expireZLines()
	list := make([]XLine, 0, len(s.zlines))
	for _, zl := range s.zlines {
		list = append(list, *zl)
	}
	return list
}

// ApplyZLines disconnects every local user matching an active Z-line
func (s *Server) ApplyZLines() {
	for _, u := range s.localUsers() {
		if zl := s.matchZLine(u.ip); zl != nil {
			s.markDead(u, fmt.Sprintf("Z-lined: %s", zl.Reason))
		}
	}
}

func (s *Server) matchZLine(ip string) *XLine {
	s.expireZLines()
	for _, zl := range s.zlines {
		if irc.MatchMask(zl.Mask, ip) {
			return zl
		}
	}
	return nil
}

func (s *Server) expireZLines() {
	now := time.Now()
	kept := s.zlines[:0]
	for _, zl := range s.zlines {
		if !zl.Expired(now) {
			kept = append(kept, zl)
		}
	}
	s.zlines = kept
}
