package protocol

import "github.com/wtyler2505/RoverMissionControl-sub013/internal/model"

// Capabilities describes one side's (client or server) negotiable
// feature set (spec §4.C, §6 "Negotiation").
type Capabilities struct {
	SupportedProtocols     []model.Protocol
	PreferredProtocol      model.Protocol
	CompressionSupported   bool
	CompressionAlgorithms  []string
	BinarySupported        bool
	StreamingSupported     bool
	MaxMessageSize         int
}

// NegotiationResult is the outcome of intersecting client and server
// capabilities.
type NegotiationResult struct {
	SelectedProtocol     model.Protocol
	CompressionEnabled   bool
	SupportedProtocols   []model.Protocol
}

// Negotiate computes the intersection of client and server formats and
// picks client-preferred if present, else server-preferred, else the
// first common format (spec §4.C). Compression is enabled only if both
// sides support it.
func Negotiate(client, server Capabilities) NegotiationResult {
	serverSet := make(map[model.Protocol]bool, len(server.SupportedProtocols))
	for _, p := range server.SupportedProtocols {
		serverSet[p] = true
	}

	var common []model.Protocol
	for _, p := range client.SupportedProtocols {
		if serverSet[p] {
			common = append(common, p)
		}
	}

	selected := pickProtocol(common, client.PreferredProtocol, server.PreferredProtocol)

	return NegotiationResult{
		SelectedProtocol:   selected,
		CompressionEnabled: client.CompressionSupported && server.CompressionSupported,
		SupportedProtocols: common,
	}
}

func pickProtocol(common []model.Protocol, clientPreferred, serverPreferred model.Protocol) model.Protocol {
	contains := func(list []model.Protocol, p model.Protocol) bool {
		for _, x := range list {
			if x == p {
				return true
			}
		}
		return false
	}

	if contains(common, clientPreferred) {
		return clientPreferred
	}
	if contains(common, serverPreferred) {
		return serverPreferred
	}
	if len(common) > 0 {
		return common[0]
	}
	return ""
}
