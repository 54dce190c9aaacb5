package webrtc

import (
	"slices"

	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
)

const (
	channelLabel    = "exchange"
	channelProtocol = "exchange-link"
)

var defaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
	"stun:stun3.l.google.com:19302",
	"stun:stun4.l.google.com:19302",
}

type Config struct {
	// ICEServers are STUN/TURN urls. Empty means host candidates only.
	ICEServers []string
	Logger     *logrus.Logger
}

func DefaultSTUNServers() []string {
	return slices.Clone(defaultSTUNServers)
}

func DefaultSTUNConfig() webrtc.Configuration {
	return configuration(defaultSTUNServers)
}

func configuration(servers []string) webrtc.Configuration {
	cfg := webrtc.Configuration{
		ICETransportPolicy: webrtc.ICETransportPolicyAll,
	}
	if len(servers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: slices.Clone(servers)}}
	}
	return cfg
}

// DefaultDataChannelConfig is ordered with unlimited retransmits, i.e.
// reliable delivery.
func DefaultDataChannelConfig() *webrtc.DataChannelInit {
	protocolName := channelProtocol
	ordered := true
	return &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: nil,
		Protocol:       &protocolName,
	}
}
