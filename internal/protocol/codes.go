package protocol

import "fmt"

// Command identifies a request sent from client to server
type Command uint32

// Command codes
const (
	CmdPlay        Command = 0
	CmdPause       Command = 1
	CmdStop        Command = 2
	CmdNext        Command = 3
	CmdPrevious    Command = 4
	CmdSetPosition Command = 5
	CmdGetPosition Command = 6
	CmdSetVolume   Command = 7
	CmdGetVolume   Command = 8
	CmdGetDuration Command = 9
	CmdGetStatus   Command = 10

	CmdClear           Command = 100
	CmdAppendSequence  Command = 101
	CmdGetNumSequences Command = 102
	CmdGetSequence     Command = 103
	CmdRemoveSequence  Command = 104

	CmdTerminateConnection Command = 1001
)

var commandNames = map[Command]string{
	CmdPlay:                "PLAY",
	CmdPause:               "PAUSE",
	CmdStop:                "STOP",
	CmdNext:                "NEXT",
	CmdPrevious:            "PREVIOUS",
	CmdSetPosition:         "SETPOSITION",
	CmdGetPosition:         "GETPOSITION",
	CmdSetVolume:           "SETVOLUME",
	CmdGetVolume:           "GETVOLUME",
	CmdGetDuration:         "GETDURATION",
	CmdGetStatus:           "GETSTATUS",
	CmdClear:               "CLEAR",
	CmdAppendSequence:      "APPENDSEQUENCE",
	CmdGetNumSequences:     "GETNUMSEQUENCES",
	CmdGetSequence:         "GETSEQUENCE",
	CmdRemoveSequence:      "REMOVESEQUENCE",
	CmdTerminateConnection: "TERMINATECONNECTION",
}

// Known reports whether c is a command this protocol defines
func (c Command) Known() bool {
	_, ok := commandNames[c]
	return ok
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("COMMAND(%d)", uint32(c))
}

// Response identifies the outcome of a request
type Response uint32

// Response codes
const (
	RespSuccess           Response = 0
	RespValue             Response = 1
	RespErrUnknown        Response = 2
	RespErrNotImplemented Response = 3
	RespErrFormat         Response = 4
	RespErrUninitialized  Response = 5
	RespErrNoSequences    Response = 6
)

var responseNames = map[Response]string{
	RespSuccess:           "SUCCESS",
	RespValue:             "VALUE",
	RespErrUnknown:        "ERROR_UNKNOWN",
	RespErrNotImplemented: "ERROR_NOTIMPLEMENTED",
	RespErrFormat:         "ERROR_FORMAT",
	RespErrUninitialized:  "ERROR_UNINITIALIZED",
	RespErrNoSequences:    "ERROR_NOSEQUENCES",
}

// Known reports whether r is a response this protocol defines
func (r Response) Known() bool {
	_, ok := responseNames[r]
	return ok
}

func (r Response) String() string {
	if name, ok := responseNames[r]; ok {
		return name
	}
	return fmt.Sprintf("RESPONSE(%d)", uint32(r))
}

// Status values carried by GETSTATUS responses
const (
	StatusPlaying uint32 = 0
	StatusPaused  uint32 = 1
	StatusStopped uint32 = 2
)
