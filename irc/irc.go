/*
Package irc holds the protocol primitives shared by the server, its links and
its feature modules.

# Messages

ParseMessage turns a wire line into a Message using girc's parser; String
renders it back, adding the trailing colon only where the last parameter
needs one. Message tags are kept so TAGMSG and tagged PRIVMSG can be relayed
unchanged.

# Numerics

Numeric replies are string constants named after their RFC 1459 / IRCv3
names (ERR_CANTSENDTOUSER, RPL_WHOISSPECIAL and so on). Commands girc does
not define, such as TAGMSG and the server-to-server METADATA, are declared
here as well.

# Masks

MatchMask implements the usual case-insensitive glob match used by Z-lines
and operator host masks.

The server itself lives in irc/server, server-to-server links in irc/link
and configuration in irc/config. Feature modules live under modules/.
*/
package irc
