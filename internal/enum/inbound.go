package enum

type InboundClassification string

const (
	InboundClassificationOK        InboundClassification = "ok"
	InboundClassificationBounce    InboundClassification = "bounce"
	InboundClassificationAutoReply InboundClassification = "auto_reply"
	InboundClassificationBulk      InboundClassification = "bulk"
)

func (c InboundClassification) String() string {
	return string(c)
}
