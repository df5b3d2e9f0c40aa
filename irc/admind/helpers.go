package admind

import (
	"sort"
	"strconv"
	"time"

	"github.com/Kufat/inspircd/irc/server"
)

// userView is how a user is shown by GET /users
type userView struct {
	UUID     string `json:"uuid"`
	Nick     string `json:"nick"`
	Ident    string `json:"ident"`
	Host     string `json:"host"`
	IP       string `json:"ip"`
	Realname string `json:"realname"`
	Server   string `json:"server"`
	Local    bool   `json:"local"`
	Oper     bool   `json:"oper"`
	ULined   bool   `json:"ulined,omitempty"`
	Signon   int64  `json:"signon"`
}

func newUserView(u *server.User) userView {
	return userView{
		UUID:     u.UUID(),
		Nick:     u.Nick(),
		Ident:    u.Ident(),
		Host:     u.Host(),
		IP:       u.IP(),
		Realname: u.Realname(),
		Server:   u.Server().Name,
		Local:    u.IsLocal(),
		Oper:     u.IsOper(),
		ULined:   u.IsULined(),
		Signon:   u.Signon().Unix(),
	}
}

func sortUsers(list []userView) {
	sort.Slice(list, func(i, j int) bool { return list[i].Nick < list[j].Nick })
}

// zlineView is how a Z-line is shown by GET /zlines
type zlineView struct {
	Mask    string `json:"mask"`
	Reason  string `json:"reason"`
	Source  string `json:"source"`
	SetAt   int64  `json:"set_at"`
	Expires int64  `json:"expires,omitempty"`
}

func newZLineView(zl server.XLine) zlineView {
	v := zlineView{
		Mask:   zl.Mask,
		Reason: zl.Reason,
		Source: zl.Source,
		SetAt:  zl.SetAt.Unix(),
	}
	if zl.Duration > 0 {
		v.Expires = zl.SetAt.Add(zl.Duration).Unix()
	}
	return v
}

// parseDuration parses a ban duration. It accepts IRC style values like
// "1d", "2h" or "30m" as well as anything time.ParseDuration does.
func parseDuration(s string) (time.Duration, error) {
	if len(s) > 1 {
		last := s[len(s)-1]
		if val, err := strconv.Atoi(s[:len(s)-1]); err == nil {
			switch last {
			case 's':
				return time.Duration(val) * time.Second, nil
			case 'm':
				return time.Duration(val) * time.Minute, nil
			case 'h':
				return time.Duration(val) * time.Hour, nil
			case 'd':
				return time.Duration(val) * time.Hour * 24, nil
			case 'w':
				return time.Duration(val) * time.Hour * 24 * 7, nil
			case 'y':
				return time.Duration(val) * time.Hour * 24 * 365, nil
			}
		}
	}
	return time.ParseDuration(s)
}
