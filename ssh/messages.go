// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

// This file is the packet record of §3: the message-number table, the
// category each message belongs to (used by the connection driver to reject
// out-of-phase packets, §4.7), and the typed payload for every variant. The
// three tagged-union forms named in §4.1 each have a home here:
//
//   - variant-prefix: channelOpenBody, keyed by the channel-type string
//     (its chanType()) that channelOpenMsg writes first on the wire.
//   - sibling-name:   authMethodBody, keyed by the Method field that is a
//     sibling of User/Service inside userAuthRequestMsg.
//   - context:        userauth60Body, keyed by wireContext.authHint, which
//     the enclosing driver threads in from outside because message 60's
//     raw bytes carry no self-describing tag at all.
//
// Every union also carries an "unknown" catch-all variant that records the
// tag bytes and refuses to be re-encoded (marshalling it calls bug()).

// message numbers, RFC 4250 §4.1 plus RFC 8308 EXT_INFO.
const (
	msgDisconnect      byte = 1
	msgIgnore          byte = 2
	msgUnimplemented   byte = 3
	msgDebug           byte = 4
	msgServiceRequest  byte = 5
	msgServiceAccept   byte = 6
	msgExtInfo         byte = 7

	msgKexInit  byte = 20
	msgNewKeys  byte = 21

	msgKexECDHInit  byte = 30
	msgKexECDHReply byte = 31

	msgUserAuthRequest byte = 50
	msgUserAuthFailure byte = 51
	msgUserAuthSuccess byte = 52
	msgUserAuthBanner  byte = 53
	msgUserAuth60      byte = 60

	msgGlobalRequest  byte = 80
	msgRequestSuccess byte = 81
	msgRequestFailure byte = 82

	msgChannelOpen           byte = 90
	msgChannelOpenConfirm    byte = 91
	msgChannelOpenFailure    byte = 92
	msgChannelWindowAdjust   byte = 93
	msgChannelData           byte = 94
	msgChannelExtendedData   byte = 95
	msgChannelEOF            byte = 96
	msgChannelClose          byte = 97
	msgChannelRequest        byte = 98
	msgChannelSuccess        byte = 99
	msgChannelFailure        byte = 100
)

// category classifies a message number for the admissibility check of §3/§4.7.
type category int

const (
	catAll category = iota
	catKex
	catAuth
	catSess
)

func categoryOf(msgType byte) category {
	switch {
	case msgType == msgDisconnect || msgType == msgIgnore || msgType == msgUnimplemented ||
		msgType == msgDebug || msgType == msgServiceRequest || msgType == msgServiceAccept ||
		msgType == msgExtInfo:
		return catAll
	case msgType == msgKexInit || msgType == msgNewKeys ||
		(msgType >= 30 && msgType <= 49):
		return catKex
	case msgType >= 50 && msgType <= 79:
		return catAuth
	case msgType >= 80 && msgType <= 127:
		return catSess
	default:
		return catAll
	}
}

// wireContext carries the out-of-band state the two context-sensitive
// decode/encode sites need (§4.1, §9): which shape message 60 takes, and
// whether a pubkey auth method should be rendered in "to-be-signed" form.
type wireContext struct {
	authHint        authMethodHint
	forceSigPresent bool
}

type authMethodHint int

const (
	authHintNone authMethodHint = iota
	authHintPubKey
	authHintPassword
)

func (h authMethodHint) String() string {
	switch h {
	case authHintPubKey:
		return "publickey"
	case authHintPassword:
		return "password"
	default:
		return "none"
	}
}

// message is implemented by every decoded packet body (the number byte
// itself is stripped before unmarshal and re-added by encodeMessage on
// encode).
type message interface {
	messageNumber() byte
	marshal(e *encoder, ctx *wireContext)
}

// encodeMessage renders m, including its leading message-number byte.
func encodeMessage(m message, ctx *wireContext) []byte {
	e := newEncoder()
	e.putByte(m.messageNumber())
	m.marshal(e, ctx)
	return e.bytes()
}

// decodeMessage dispatches on payload[0] and fully decodes the body. An
// unrecognised message number is a protocol error the caller turns into
// SSH_MSG_UNIMPLEMENTED rather than a local fatal error (§7).
func decodeMessage(payload []byte, ctx *wireContext) (message, error) {
	if len(payload) < 1 {
		return nil, errShortInput
	}
	msgType, body := payload[0], payload[1:]
	d := newDecoder(body)
	var m message
	switch msgType {
	case msgDisconnect:
		m = &disconnectMsg{}
	case msgIgnore:
		m = &ignoreMsg{}
	case msgUnimplemented:
		m = &unimplementedMsg{}
	case msgDebug:
		m = &debugMsg{}
	case msgServiceRequest:
		m = &serviceRequestMsg{}
	case msgServiceAccept:
		m = &serviceAcceptMsg{}
	case msgExtInfo:
		m = &extInfoMsg{}
	case msgKexInit:
		m = &kexInitMsg{}
	case msgNewKeys:
		m = &newKeysMsg{}
	case msgKexECDHInit:
		m = &kexECDHInitMsg{}
	case msgKexECDHReply:
		m = &kexECDHReplyMsg{}
	case msgUserAuthRequest:
		m = &userAuthRequestMsg{}
	case msgUserAuthFailure:
		m = &userAuthFailureMsg{}
	case msgUserAuthSuccess:
		m = &userAuthSuccessMsg{}
	case msgUserAuthBanner:
		m = &userAuthBannerMsg{}
	case msgUserAuth60:
		m = &userauth60Msg{}
	case msgGlobalRequest:
		m = &globalRequestMsg{}
	case msgRequestSuccess:
		m = &requestSuccessMsg{}
	case msgRequestFailure:
		m = &requestFailureMsg{}
	case msgChannelOpen:
		m = &channelOpenMsg{}
	case msgChannelOpenConfirm:
		m = &channelOpenConfirmMsg{}
	case msgChannelOpenFailure:
		m = &channelOpenFailureMsg{}
	case msgChannelWindowAdjust:
		m = &channelWindowAdjustMsg{}
	case msgChannelData:
		m = &channelDataMsg{}
	case msgChannelExtendedData:
		m = &channelExtendedDataMsg{}
	case msgChannelEOF:
		m = &channelEOFMsg{}
	case msgChannelClose:
		m = &channelCloseMsg{}
	case msgChannelRequest:
		m = &channelRequestMsg{}
	case msgChannelSuccess:
		m = &channelSuccessMsg{}
	case msgChannelFailure:
		m = &channelFailureMsg{}
	default:
		return nil, &unimplementedError{msgType: msgType}
	}
	if u, ok := m.(unmarshaler); ok {
		if err := u.unmarshal(d, ctx); err != nil {
			return nil, err
		}
	}
	return m, nil
}

type unmarshaler interface {
	unmarshal(d *decoder, ctx *wireContext) error
}

// unimplementedError signals decodeMessage saw a message number it does not
// know; session.go's dispatch turns this into an outbound SSH_MSG_UNIMPLEMENTED rather
// than tearing the connection down (§7).
type unimplementedError struct{ msgType byte }

func (u *unimplementedError) Error() string {
	return (&ParseError{MsgType: u.msgType, Reason: "unknown message number"}).Error()
}

// ---- transport generic (catAll) ----

type disconnectMsg struct {
	Reason   uint32
	Message  string
	Language string
}

func (*disconnectMsg) messageNumber() byte { return msgDisconnect }
func (m *disconnectMsg) marshal(e *encoder, _ *wireContext) {
	e.putUint32(m.Reason)
	e.putText(m.Message)
	e.putText(m.Language)
}
func (m *disconnectMsg) unmarshal(d *decoder, _ *wireContext) (err error) {
	if m.Reason, err = d.uint32(); err != nil {
		return err
	}
	if m.Message, err = d.text(); err != nil {
		return err
	}
	m.Language, err = d.text()
	return err
}

// Disconnect reason codes, RFC 4253 §11.1, supplemented from
// original_source/src/packets.rs (spec §3 "Supplemented features").
const (
	DisconnectHostNotAllowedToConnect     uint32 = 1
	DisconnectProtocolError                uint32 = 2
	DisconnectKeyExchangeFailed             uint32 = 3
	DisconnectReserved                      uint32 = 4
	DisconnectMACError                      uint32 = 5
	DisconnectCompressionError              uint32 = 6
	DisconnectServiceNotAvailable           uint32 = 7
	DisconnectProtocolVersionNotSupported   uint32 = 8
	DisconnectHostKeyNotVerifiable          uint32 = 9
	DisconnectConnectionLost                uint32 = 10
	DisconnectByApplication                 uint32 = 11
	DisconnectTooManyConnections            uint32 = 12
	DisconnectAuthCancelledByUser           uint32 = 13
	DisconnectNoMoreAuthMethodsAvailable    uint32 = 14
	DisconnectIllegalUserName                uint32 = 15
)

type ignoreMsg struct{ Data []byte }

func (*ignoreMsg) messageNumber() byte { return msgIgnore }
func (m *ignoreMsg) marshal(e *encoder, _ *wireContext) { e.putString(m.Data) }
func (m *ignoreMsg) unmarshal(d *decoder, _ *wireContext) (err error) {
	m.Data, err = d.str()
	return err
}

type unimplementedMsg struct{ Seq uint32 }

func (*unimplementedMsg) messageNumber() byte { return msgUnimplemented }
func (m *unimplementedMsg) marshal(e *encoder, _ *wireContext) { e.putUint32(m.Seq) }
func (m *unimplementedMsg) unmarshal(d *decoder, _ *wireContext) (err error) {
	m.Seq, err = d.uint32()
	return err
}

type debugMsg struct {
	AlwaysDisplay bool
	Message       string
	Language      string
}

func (*debugMsg) messageNumber() byte { return msgDebug }
func (m *debugMsg) marshal(e *encoder, _ *wireContext) {
	e.putBool(m.AlwaysDisplay)
	e.putText(m.Message)
	e.putText(m.Language)
}
func (m *debugMsg) unmarshal(d *decoder, _ *wireContext) (err error) {
	if m.AlwaysDisplay, err = d.bool(); err != nil {
		return err
	}
	if m.Message, err = d.text(); err != nil {
		return err
	}
	m.Language, err = d.text()
	return err
}

type serviceRequestMsg struct{ Service string }

func (*serviceRequestMsg) messageNumber() byte { return msgServiceRequest }
func (m *serviceRequestMsg) marshal(e *encoder, _ *wireContext) { e.putText(m.Service) }
func (m *serviceRequestMsg) unmarshal(d *decoder, _ *wireContext) (err error) {
	m.Service, err = d.text()
	return err
}

type serviceAcceptMsg struct{ Service string }

func (*serviceAcceptMsg) messageNumber() byte { return msgServiceAccept }
func (m *serviceAcceptMsg) marshal(e *encoder, _ *wireContext) { e.putText(m.Service) }
func (m *serviceAcceptMsg) unmarshal(d *decoder, _ *wireContext) (err error) {
	m.Service, err = d.text()
	return err
}

// extInfoMsg is RFC 8308's SSH_MSG_EXT_INFO: an ordered list of
// name/value pairs advertising extensions, most relevantly
// "server-sig-algs" (spec §3 supplemented feature: recorded, never acted on
// beyond that per spec §9 Open Question on RSA-SHA2).
type extInfoMsg struct {
	Names  []string
	Values [][]byte
}

func (*extInfoMsg) messageNumber() byte { return msgExtInfo }
func (m *extInfoMsg) marshal(e *encoder, _ *wireContext) {
	e.putUint32(uint32(len(m.Names)))
	for i, n := range m.Names {
		e.putText(n)
		e.putString(m.Values[i])
	}
}
func (m *extInfoMsg) unmarshal(d *decoder, _ *wireContext) error {
	n, err := d.uint32()
	if err != nil {
		return err
	}
	if n > 64 {
		return errResourceExtInfoCount
	}
	m.Names = make([]string, 0, n)
	m.Values = make([][]byte, 0, n)
	for i := uint32(0); i < n; i++ {
		name, err := d.text()
		if err != nil {
			return err
		}
		val, err := d.str()
		if err != nil {
			return err
		}
		m.Names = append(m.Names, name)
		m.Values = append(m.Values, val)
	}
	return nil
}

var errResourceExtInfoCount = resourceErrorf("ext-info declares an unreasonable number of extensions")

// lookup returns the value for name, if present.
func (m *extInfoMsg) lookup(name string) ([]byte, bool) {
	for i, n := range m.Names {
		if n == name {
			return m.Values[i], true
		}
	}
	return nil, false
}

// ---- key exchange (catKex) ----

type kexInitMsg struct {
	Cookie                  [16]byte
	KexAlgos                []string
	ServerHostKeyAlgos      []string
	CiphersClientServer     []string
	CiphersServerClient     []string
	MACsClientServer        []string
	MACsServerClient        []string
	CompressionClientServer []string
	CompressionServerClient []string
	LanguagesClientServer   []string
	LanguagesServerClient   []string
	FirstKexFollows         bool
	Reserved                uint32
}

func (*kexInitMsg) messageNumber() byte { return msgKexInit }
func (m *kexInitMsg) marshal(e *encoder, _ *wireContext) {
	e.putFixed(m.Cookie[:])
	e.putNameList(m.KexAlgos)
	e.putNameList(m.ServerHostKeyAlgos)
	e.putNameList(m.CiphersClientServer)
	e.putNameList(m.CiphersServerClient)
	e.putNameList(m.MACsClientServer)
	e.putNameList(m.MACsServerClient)
	e.putNameList(m.CompressionClientServer)
	e.putNameList(m.CompressionServerClient)
	e.putNameList(m.LanguagesClientServer)
	e.putNameList(m.LanguagesServerClient)
	e.putBool(m.FirstKexFollows)
	e.putUint32(m.Reserved)
}
func (m *kexInitMsg) unmarshal(d *decoder, _ *wireContext) error {
	cookie, err := d.fixed(16)
	if err != nil {
		return err
	}
	copy(m.Cookie[:], cookie)
	fields := []*[]string{
		&m.KexAlgos, &m.ServerHostKeyAlgos,
		&m.CiphersClientServer, &m.CiphersServerClient,
		&m.MACsClientServer, &m.MACsServerClient,
		&m.CompressionClientServer, &m.CompressionServerClient,
		&m.LanguagesClientServer, &m.LanguagesServerClient,
	}
	for _, f := range fields {
		nl, err := d.nameList()
		if err != nil {
			return err
		}
		*f = nl
	}
	if m.FirstKexFollows, err = d.bool(); err != nil {
		return err
	}
	m.Reserved, err = d.uint32()
	return err
}

type newKeysMsg struct{}

func (*newKeysMsg) messageNumber() byte                          { return msgNewKeys }
func (*newKeysMsg) marshal(*encoder, *wireContext)                {}
func (*newKeysMsg) unmarshal(*decoder, *wireContext) error        { return nil }

type kexECDHInitMsg struct{ ClientPubKey []byte }

func (*kexECDHInitMsg) messageNumber() byte { return msgKexECDHInit }
func (m *kexECDHInitMsg) marshal(e *encoder, _ *wireContext) { e.putString(m.ClientPubKey) }
func (m *kexECDHInitMsg) unmarshal(d *decoder, _ *wireContext) (err error) {
	m.ClientPubKey, err = d.str()
	return err
}

type kexECDHReplyMsg struct {
	HostKey      []byte
	ServerPubKey []byte
	Signature    []byte
}

func (*kexECDHReplyMsg) messageNumber() byte { return msgKexECDHReply }
func (m *kexECDHReplyMsg) marshal(e *encoder, _ *wireContext) {
	e.putString(m.HostKey)
	e.putString(m.ServerPubKey)
	e.putString(m.Signature)
}
func (m *kexECDHReplyMsg) unmarshal(d *decoder, _ *wireContext) error {
	var err error
	if m.HostKey, err = d.str(); err != nil {
		return err
	}
	if m.ServerPubKey, err = d.str(); err != nil {
		return err
	}
	m.Signature, err = d.str()
	return err
}

// ---- authentication (catAuth) ----

// authMethodBody is the sibling-name tagged union selected by
// userAuthRequestMsg.Method (§4.1 sibling-name form).
type authMethodBody interface {
	methodName() string
	marshalBody(e *encoder, ctx *wireContext)
}

func decodeAuthMethodBody(name string, d *decoder) (authMethodBody, error) {
	switch name {
	case "none":
		return &noneMethod{}, nil
	case "password":
		m := &passwordMethod{}
		var err error
		if m.ChangeRequest, err = d.bool(); err != nil {
			return nil, err
		}
		if m.Password, err = d.text(); err != nil {
			return nil, err
		}
		if m.ChangeRequest {
			if m.NewPassword, err = d.text(); err != nil {
				return nil, err
			}
		}
		return m, nil
	case "publickey":
		m := &pubkeyMethod{}
		var err error
		if m.HasSignature, err = d.bool(); err != nil {
			return nil, err
		}
		if m.Algo, err = d.text(); err != nil {
			return nil, err
		}
		if m.PubKeyBlob, err = d.str(); err != nil {
			return nil, err
		}
		if m.HasSignature {
			if m.Signature, err = d.str(); err != nil {
				return nil, err
			}
		}
		return m, nil
	default:
		return &unknownAuthMethod{name: []byte(name), rest: d.rest()}, nil
	}
}

type noneMethod struct{}

func (*noneMethod) methodName() string                          { return "none" }
func (*noneMethod) marshalBody(*encoder, *wireContext)            {}

type passwordMethod struct {
	ChangeRequest bool
	Password      string
	NewPassword   string
}

func (*passwordMethod) methodName() string { return "password" }
func (m *passwordMethod) marshalBody(e *encoder, _ *wireContext) {
	e.putBool(m.ChangeRequest)
	e.putText(m.Password)
	if m.ChangeRequest {
		e.putText(m.NewPassword)
	}
}

// pubkeyMethod is the publickey auth method of RFC 4252 §7. Encoding it
// with ctx.forceSigPresent set (and Signature left empty) produces exactly
// the bytes that get signed — the "message to be signed" of spec §4.1/§4.5 —
// without the signature field itself trailing the payload.
type pubkeyMethod struct {
	HasSignature bool
	Algo         string
	PubKeyBlob   []byte
	Signature    []byte
}

func (*pubkeyMethod) methodName() string { return "publickey" }
func (m *pubkeyMethod) marshalBody(e *encoder, ctx *wireContext) {
	present := m.HasSignature
	if ctx != nil && ctx.forceSigPresent {
		present = true
	}
	e.putBool(present)
	e.putText(m.Algo)
	e.putString(m.PubKeyBlob)
	if present && !(ctx != nil && ctx.forceSigPresent) {
		e.putString(m.Signature)
	}
}

// unknownAuthMethod captures an auth method name this engine does not
// implement (e.g. "keyboard-interactive"). Decode-only: marshalBody is a
// programmer error per §4.1/§9 Unknown-variant capture.
type unknownAuthMethod struct {
	name []byte
	rest []byte
}

func (u *unknownAuthMethod) methodName() string { return string(u.name) }
func (u *unknownAuthMethod) marshalBody(*encoder, *wireContext) {
	bug("attempted to re-encode an unknown auth method %q", u.name)
}

type userAuthRequestMsg struct {
	User    string
	Service string
	Method  string
	Body    authMethodBody
}

func (*userAuthRequestMsg) messageNumber() byte { return msgUserAuthRequest }
func (m *userAuthRequestMsg) marshal(e *encoder, ctx *wireContext) {
	e.putText(m.User)
	e.putText(m.Service)
	e.putText(m.Method)
	m.Body.marshalBody(e, ctx)
}
func (m *userAuthRequestMsg) unmarshal(d *decoder, _ *wireContext) error {
	var err error
	if m.User, err = d.text(); err != nil {
		return err
	}
	if m.Service, err = d.text(); err != nil {
		return err
	}
	if m.Method, err = d.text(); err != nil {
		return err
	}
	m.Body, err = decodeAuthMethodBody(m.Method, d)
	return err
}

type userAuthFailureMsg struct {
	Methods        []string
	PartialSuccess bool
}

func (*userAuthFailureMsg) messageNumber() byte { return msgUserAuthFailure }
func (m *userAuthFailureMsg) marshal(e *encoder, _ *wireContext) {
	e.putNameList(m.Methods)
	e.putBool(m.PartialSuccess)
}
func (m *userAuthFailureMsg) unmarshal(d *decoder, _ *wireContext) error {
	var err error
	if m.Methods, err = d.nameList(); err != nil {
		return err
	}
	m.PartialSuccess, err = d.bool()
	return err
}

type userAuthSuccessMsg struct{}

func (*userAuthSuccessMsg) messageNumber() byte                   { return msgUserAuthSuccess }
func (*userAuthSuccessMsg) marshal(*encoder, *wireContext)         {}
func (*userAuthSuccessMsg) unmarshal(*decoder, *wireContext) error { return nil }

type userAuthBannerMsg struct {
	Message  string
	Language string
}

func (*userAuthBannerMsg) messageNumber() byte { return msgUserAuthBanner }
func (m *userAuthBannerMsg) marshal(e *encoder, _ *wireContext) {
	e.putText(m.Message)
	e.putText(m.Language)
}
func (m *userAuthBannerMsg) unmarshal(d *decoder, _ *wireContext) (err error) {
	if m.Message, err = d.text(); err != nil {
		return err
	}
	m.Language, err = d.text()
	return err
}

// userauth60Body is the context-form union of §4.1/§9: message 60's shape
// depends entirely on wireContext.authHint, set by the client driver to
// whatever method it is currently waiting on a reply for.
type userauth60Body interface{ isUserauth60Body() }

type pkOkBody struct {
	Algo string
	Key  []byte
}

func (*pkOkBody) isUserauth60Body() {}

type pwChangeReqBody struct {
	Prompt   string
	Language string
}

func (*pwChangeReqBody) isUserauth60Body() {}

type userauth60Msg struct{ Body userauth60Body }

func (*userauth60Msg) messageNumber() byte { return msgUserAuth60 }
func (m *userauth60Msg) marshal(e *encoder, _ *wireContext) {
	switch b := m.Body.(type) {
	case *pkOkBody:
		e.putText(b.Algo)
		e.putString(b.Key)
	case *pwChangeReqBody:
		e.putText(b.Prompt)
		e.putText(b.Language)
	default:
		bug("userauth60Msg with unset body")
	}
}
func (m *userauth60Msg) unmarshal(d *decoder, ctx *wireContext) error {
	switch ctx.authHint {
	case authHintPubKey:
		b := &pkOkBody{}
		var err error
		if b.Algo, err = d.text(); err != nil {
			return err
		}
		if b.Key, err = d.str(); err != nil {
			return err
		}
		m.Body = b
		return nil
	case authHintPassword:
		b := &pwChangeReqBody{}
		var err error
		if b.Prompt, err = d.text(); err != nil {
			return err
		}
		if b.Language, err = d.text(); err != nil {
			return err
		}
		m.Body = b
		return nil
	default:
		return protoErrorf("received message 60 without a pending request to disambiguate it")
	}
}

// ---- connection / global requests (catSess) ----

type globalRequestMsg struct {
	RequestName string
	WantReply   bool
	Data        []byte
}

func (*globalRequestMsg) messageNumber() byte { return msgGlobalRequest }
func (m *globalRequestMsg) marshal(e *encoder, _ *wireContext) {
	e.putText(m.RequestName)
	e.putBool(m.WantReply)
	e.putFixed(m.Data)
}
func (m *globalRequestMsg) unmarshal(d *decoder, _ *wireContext) error {
	var err error
	if m.RequestName, err = d.text(); err != nil {
		return err
	}
	m.WantReply, err = d.bool()
	m.Data = d.rest()
	return err
}

type requestSuccessMsg struct{ Data []byte }

func (*requestSuccessMsg) messageNumber() byte { return msgRequestSuccess }
func (m *requestSuccessMsg) marshal(e *encoder, _ *wireContext) { e.putFixed(m.Data) }
func (m *requestSuccessMsg) unmarshal(d *decoder, _ *wireContext) error {
	m.Data = d.rest()
	return nil
}

type requestFailureMsg struct{}

func (*requestFailureMsg) messageNumber() byte                   { return msgRequestFailure }
func (*requestFailureMsg) marshal(*encoder, *wireContext)         {}
func (*requestFailureMsg) unmarshal(*decoder, *wireContext) error { return nil }

// channelOpenBody is the variant-prefix union of §4.1, keyed by the
// channel-type string channelOpenMsg writes first (chanType()).
type channelOpenBody interface {
	chanType() string
	marshalBody(e *encoder)
}

func decodeChannelOpenBody(name string, d *decoder) (channelOpenBody, error) {
	switch name {
	case "session":
		return &sessionOpenBody{}, nil
	case "direct-tcpip":
		b := &directTCPIPOpenBody{}
		var err error
		if b.Host, err = d.text(); err != nil {
			return nil, err
		}
		if b.Port, err = d.uint32(); err != nil {
			return nil, err
		}
		if b.OriginHost, err = d.text(); err != nil {
			return nil, err
		}
		if b.OriginPort, err = d.uint32(); err != nil {
			return nil, err
		}
		return b, nil
	case "forwarded-tcpip":
		b := &forwardedTCPIPOpenBody{}
		var err error
		if b.ConnectedHost, err = d.text(); err != nil {
			return nil, err
		}
		if b.ConnectedPort, err = d.uint32(); err != nil {
			return nil, err
		}
		if b.OriginHost, err = d.text(); err != nil {
			return nil, err
		}
		if b.OriginPort, err = d.uint32(); err != nil {
			return nil, err
		}
		return b, nil
	default:
		return &unknownOpenBody{name: []byte(name), rest: d.rest()}, nil
	}
}

type sessionOpenBody struct{}

func (*sessionOpenBody) chanType() string     { return "session" }
func (*sessionOpenBody) marshalBody(*encoder) {}

type directTCPIPOpenBody struct {
	Host       string
	Port       uint32
	OriginHost string
	OriginPort uint32
}

func (*directTCPIPOpenBody) chanType() string { return "direct-tcpip" }
func (b *directTCPIPOpenBody) marshalBody(e *encoder) {
	e.putText(b.Host)
	e.putUint32(b.Port)
	e.putText(b.OriginHost)
	e.putUint32(b.OriginPort)
}

type forwardedTCPIPOpenBody struct {
	ConnectedHost string
	ConnectedPort uint32
	OriginHost    string
	OriginPort    uint32
}

func (*forwardedTCPIPOpenBody) chanType() string { return "forwarded-tcpip" }
func (b *forwardedTCPIPOpenBody) marshalBody(e *encoder) {
	e.putText(b.ConnectedHost)
	e.putUint32(b.ConnectedPort)
	e.putText(b.OriginHost)
	e.putUint32(b.OriginPort)
}

// unknownOpenBody captures a channel-open request of a type this engine
// does not implement (spec §8 scenario 6: "audio-stream"). Decode-only.
type unknownOpenBody struct {
	name []byte
	rest []byte
}

func (u *unknownOpenBody) chanType() string { return string(u.name) }
func (u *unknownOpenBody) marshalBody(*encoder) {
	bug("attempted to re-encode an unknown channel-open type %q", u.name)
}

type channelOpenMsg struct {
	PeersID       uint32
	PeersWindow   uint32
	MaxPacketSize uint32
	Body          channelOpenBody
}

func (*channelOpenMsg) messageNumber() byte { return msgChannelOpen }
func (m *channelOpenMsg) marshal(e *encoder, _ *wireContext) {
	e.putText(m.Body.chanType())
	e.putUint32(m.PeersID)
	e.putUint32(m.PeersWindow)
	e.putUint32(m.MaxPacketSize)
	m.Body.marshalBody(e)
}
func (m *channelOpenMsg) unmarshal(d *decoder, _ *wireContext) error {
	chanType, err := d.text()
	if err != nil {
		return err
	}
	if m.PeersID, err = d.uint32(); err != nil {
		return err
	}
	if m.PeersWindow, err = d.uint32(); err != nil {
		return err
	}
	if m.MaxPacketSize, err = d.uint32(); err != nil {
		return err
	}
	m.Body, err = decodeChannelOpenBody(chanType, d)
	return err
}

// Channel open failure reason codes, RFC 4254 §5.1.
const (
	ReasonAdministrativelyProhibited uint32 = 1
	ReasonConnectFailed              uint32 = 2
	ReasonUnknownChannelType         uint32 = 3
	ReasonResourceShortage           uint32 = 4
)

type channelOpenConfirmMsg struct {
	RecipientChannel uint32
	SenderChannel    uint32
	InitialWindow    uint32
	MaxPacketSize    uint32
}

func (*channelOpenConfirmMsg) messageNumber() byte { return msgChannelOpenConfirm }
func (m *channelOpenConfirmMsg) marshal(e *encoder, _ *wireContext) {
	e.putUint32(m.RecipientChannel)
	e.putUint32(m.SenderChannel)
	e.putUint32(m.InitialWindow)
	e.putUint32(m.MaxPacketSize)
}
func (m *channelOpenConfirmMsg) unmarshal(d *decoder, _ *wireContext) error {
	var err error
	if m.RecipientChannel, err = d.uint32(); err != nil {
		return err
	}
	if m.SenderChannel, err = d.uint32(); err != nil {
		return err
	}
	if m.InitialWindow, err = d.uint32(); err != nil {
		return err
	}
	m.MaxPacketSize, err = d.uint32()
	return err
}

type channelOpenFailureMsg struct {
	RecipientChannel uint32
	Reason           uint32
	Message          string
	Language         string
}

func (*channelOpenFailureMsg) messageNumber() byte { return msgChannelOpenFailure }
func (m *channelOpenFailureMsg) marshal(e *encoder, _ *wireContext) {
	e.putUint32(m.RecipientChannel)
	e.putUint32(m.Reason)
	e.putText(m.Message)
	e.putText(m.Language)
}
func (m *channelOpenFailureMsg) unmarshal(d *decoder, _ *wireContext) error {
	var err error
	if m.RecipientChannel, err = d.uint32(); err != nil {
		return err
	}
	if m.Reason, err = d.uint32(); err != nil {
		return err
	}
	if m.Message, err = d.text(); err != nil {
		return err
	}
	m.Language, err = d.text()
	return err
}

type channelWindowAdjustMsg struct {
	RecipientChannel uint32
	BytesToAdd       uint32
}

func (*channelWindowAdjustMsg) messageNumber() byte { return msgChannelWindowAdjust }
func (m *channelWindowAdjustMsg) marshal(e *encoder, _ *wireContext) {
	e.putUint32(m.RecipientChannel)
	e.putUint32(m.BytesToAdd)
}
func (m *channelWindowAdjustMsg) unmarshal(d *decoder, _ *wireContext) error {
	var err error
	if m.RecipientChannel, err = d.uint32(); err != nil {
		return err
	}
	m.BytesToAdd, err = d.uint32()
	return err
}

type channelDataMsg struct {
	RecipientChannel uint32
	Data             []byte
}

func (*channelDataMsg) messageNumber() byte { return msgChannelData }
func (m *channelDataMsg) marshal(e *encoder, _ *wireContext) {
	e.putUint32(m.RecipientChannel)
	e.putString(m.Data)
}
func (m *channelDataMsg) unmarshal(d *decoder, _ *wireContext) error {
	var err error
	if m.RecipientChannel, err = d.uint32(); err != nil {
		return err
	}
	m.Data, err = d.str()
	return err
}

// ExtendedDataStderr is the sole data_type_code RFC 4254 §5.2 assigns.
const ExtendedDataStderr uint32 = 1

type channelExtendedDataMsg struct {
	RecipientChannel uint32
	DataTypeCode     uint32
	Data             []byte
}

func (*channelExtendedDataMsg) messageNumber() byte { return msgChannelExtendedData }
func (m *channelExtendedDataMsg) marshal(e *encoder, _ *wireContext) {
	e.putUint32(m.RecipientChannel)
	e.putUint32(m.DataTypeCode)
	e.putString(m.Data)
}
func (m *channelExtendedDataMsg) unmarshal(d *decoder, _ *wireContext) error {
	var err error
	if m.RecipientChannel, err = d.uint32(); err != nil {
		return err
	}
	if m.DataTypeCode, err = d.uint32(); err != nil {
		return err
	}
	m.Data, err = d.str()
	return err
}

type channelEOFMsg struct{ RecipientChannel uint32 }

func (*channelEOFMsg) messageNumber() byte { return msgChannelEOF }
func (m *channelEOFMsg) marshal(e *encoder, _ *wireContext) { e.putUint32(m.RecipientChannel) }
func (m *channelEOFMsg) unmarshal(d *decoder, _ *wireContext) (err error) {
	m.RecipientChannel, err = d.uint32()
	return err
}

type channelCloseMsg struct{ RecipientChannel uint32 }

func (*channelCloseMsg) messageNumber() byte { return msgChannelClose }
func (m *channelCloseMsg) marshal(e *encoder, _ *wireContext) { e.putUint32(m.RecipientChannel) }
func (m *channelCloseMsg) unmarshal(d *decoder, _ *wireContext) (err error) {
	m.RecipientChannel, err = d.uint32()
	return err
}

type channelRequestMsg struct {
	RecipientChannel uint32
	RequestType      string
	WantReply        bool
	Data             []byte
}

func (*channelRequestMsg) messageNumber() byte { return msgChannelRequest }
func (m *channelRequestMsg) marshal(e *encoder, _ *wireContext) {
	e.putUint32(m.RecipientChannel)
	e.putText(m.RequestType)
	e.putBool(m.WantReply)
	e.putFixed(m.Data)
}
func (m *channelRequestMsg) unmarshal(d *decoder, _ *wireContext) error {
	var err error
	if m.RecipientChannel, err = d.uint32(); err != nil {
		return err
	}
	if m.RequestType, err = d.text(); err != nil {
		return err
	}
	m.WantReply, err = d.bool()
	m.Data = d.rest()
	return err
}

type channelSuccessMsg struct{ RecipientChannel uint32 }

func (*channelSuccessMsg) messageNumber() byte { return msgChannelSuccess }
func (m *channelSuccessMsg) marshal(e *encoder, _ *wireContext) { e.putUint32(m.RecipientChannel) }
func (m *channelSuccessMsg) unmarshal(d *decoder, _ *wireContext) (err error) {
	m.RecipientChannel, err = d.uint32()
	return err
}

type channelFailureMsg struct{ RecipientChannel uint32 }

func (*channelFailureMsg) messageNumber() byte { return msgChannelFailure }
func (m *channelFailureMsg) marshal(e *encoder, _ *wireContext) { e.putUint32(m.RecipientChannel) }
func (m *channelFailureMsg) unmarshal(d *decoder, _ *wireContext) (err error) {
	m.RecipientChannel, err = d.uint32()
	return err
}
