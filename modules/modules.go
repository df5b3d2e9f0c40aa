// Package modules lists the feature modules shipped with the server
package modules

import (
	"github.com/Kufat/inspircd/irc/config"
	"github.com/Kufat/inspircd/irc/server"
	"github.com/Kufat/inspircd/modules/account"
	"github.com/Kufat/inspircd/modules/antibear"
	"github.com/Kufat/inspircd/modules/auditorium"
	"github.com/Kufat/inspircd/modules/gender"
	"github.com/Kufat/inspircd/modules/restrictmsg"
)

// FromConfig returns a fresh instance of every module enabled in cfg, in
// load order. The account module comes first so restrictmsg finds a
// provider.
func FromConfig(cfg *config.Config) []server.Module {
	var list []server.Module
	opts := cfg.Modules
	if opts.Account.Enabled {
		list = append(list, account.New())
	}
	if opts.RestrictMsg.Enabled {
		list = append(list, restrictmsg.New())
	}
	if opts.Auditorium.Enabled {
		list = append(list, auditorium.New())
	}
	if opts.Gender.Enabled {
		list = append(list, gender.New())
	}
	if opts.AntiBear.Enabled {
		list = append(list, antibear.New())
	}
	return list
}
