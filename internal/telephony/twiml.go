package telephony

import (
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
)

// busyMessage is spoken to callers refused by the daily cap.
const busyMessage = "Lo sentimos, por el momento no podemos atender su llamada. Por favor intente más tarde."

// twimlResponse is the document returned to the carrier's voice webhook.
type twimlResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Say     *twimlSay     `xml:"Say,omitempty"`
	Connect *twimlConnect `xml:"Connect,omitempty"`
	Hangup  *struct{}     `xml:"Hangup,omitempty"`
}

type twimlSay struct {
	Language string `xml:"language,attr"`
	Text     string `xml:",chardata"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL string `xml:"url,attr"`
}

// ConnectStreamTwiML renders the instruction that bridges the call into the
// media-stream WebSocket at wsURL.
func ConnectStreamTwiML(wsURL string) ([]byte, error) {
	return renderTwiML(twimlResponse{
		Connect: &twimlConnect{Stream: twimlStream{URL: wsURL}},
	})
}

// BusyTwiML renders a spoken rejection followed by a hangup.
func BusyTwiML() ([]byte, error) {
	return renderTwiML(twimlResponse{
		Say:    &twimlSay{Language: "es-MX", Text: busyMessage},
		Hangup: &struct{}{},
	})
}

func renderTwiML(r twimlResponse) ([]byte, error) {
	body, err := xml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("telephony: render twiml: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// InboundHandler answers the carrier's voice webhook. Each inbound call is
// offered to admit; admitted calls are bridged to the media stream at wsURL,
// the rest hear a busy message and are hung up.
//
// rejected, when non-nil, is invoked once per refused call.
func InboundHandler(wsURL string, admit func() bool, rejected func(), log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			body []byte
			err  error
		)
		if admit() {
			body, err = ConnectStreamTwiML(wsURL)
			log.Info("inbound call accepted", "stream_url", wsURL)
		} else {
			body, err = BusyTwiML()
			log.Warn("inbound call rejected by daily cap")
			if rejected != nil {
				rejected()
			}
		}
		if err != nil {
			log.Error("twiml render failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}
