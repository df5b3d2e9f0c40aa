package irc

// Numeric replies used by the server and its modules
const (
	RPL_WELCOME          = "001"
	RPL_YOURHOST         = "002"
	RPL_CREATED          = "003"
	RPL_MYINFO           = "004"
	RPL_UMODEIS          = "221"
	RPL_WHOISUSER        = "311"
	RPL_WHOISSERVER      = "312"
	RPL_WHOISOPERATOR    = "313"
	RPL_ENDOFWHOIS       = "318"
	RPL_WHOISCHANNELS    = "319"
	RPL_WHOISSPECIAL     = "320"
	RPL_WHOISACCOUNT     = "330"
	RPL_CHANNELMODEIS    = "324"
	RPL_NOTOPIC          = "331"
	RPL_TOPIC            = "332"
	RPL_NAMREPLY         = "353"
	RPL_ENDOFNAMES       = "366"
	RPL_YOUREOPER        = "381"
	RPL_SPAMCMDFWD       = "439"
	RPL_SPAMBOTWARNING   = "931"
	RPL_LOGGEDIN         = "900"
	RPL_LOGGEDOUT        = "901"
	ERR_NOSUCHNICK       = "401"
	ERR_NOSUCHCHANNEL    = "403"
	ERR_CANNOTSENDTOCHAN = "404"
	ERR_NORECIPIENT      = "411"
	ERR_NOTEXTTOSEND     = "412"
	ERR_UNKNOWNCOMMAND   = "421"
	ERR_NONICKNAMEGIVEN  = "431"
	ERR_ERRONEUSNICKNAME = "432"
	ERR_NICKNAMEINUSE    = "433"
	ERR_USERNOTINCHANNEL = "441"
	ERR_NOTONCHANNEL     = "442"
	ERR_NOTREGISTERED    = "451"
	ERR_NEEDMOREPARAMS   = "461"
	ERR_ALREADYREGISTRED = "462"
	ERR_PASSWDMISMATCH   = "464"
	ERR_YOUREBANNEDCREEP = "465"
	ERR_UNKNOWNMODE      = "472"
	ERR_NOPRIVILEGES     = "481"
	ERR_NOOPERHOST       = "491"
	ERR_USERSDONTMATCH   = "502"
	ERR_INVALIDCAPCMD    = "410"
	ERR_CHANOPRIVSNEEDED = "482"
	ERR_CANTSENDTOUSER   = "531"
)

// Commands that have no constant in girc
const (
	TAGMSG   = "TAGMSG"
	UID      = "UID"
	METADATA = "METADATA"
	ENDBURST = "ENDBURST"
	SQUIT    = "SQUIT"
)
