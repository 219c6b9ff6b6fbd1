package session

import "time"

const (
	// TerminateAt is the accepted defocus count that ends the session.
	TerminateAt = 5
	// GracePeriod separates the termination decision from its execution.
	GracePeriod = 2 * time.Second
	// FraudReason is recorded on fraud-terminated submissions.
	FraudReason = "Excessive tab switching (5+ switches)"
)

var warningMessages = [TerminateAt]string{
	"Perpindahan tab terdeteksi. Tetap di halaman ujian.",
	"Peringatan kedua: meninggalkan jendela ujian sedang dicatat.",
	"Peringatan ketiga: perpindahan tab berikutnya dapat mengakhiri ujian Anda.",
	"Peringatan terakhir: satu kali lagi berpindah tab, ujian Anda akan dihentikan.",
	"Terlalu sering berpindah tab. Ujian Anda sedang dikumpulkan.",
}

// Decision is the outcome of classifying a defocus count.
type Decision struct {
	Level     int
	Message   string
	Terminate bool
}

// FraudPolicy maps an accumulated defocus count to a warning level or a
// termination decision.
type FraudPolicy struct{}

// Classify is pure. Counts 1-4 yield advisory warnings, exactly TerminateAt
// yields Terminate, and anything beyond stays at the final level without
// asking for termination again.
func (FraudPolicy) Classify(count int) Decision {
	switch {
	case count <= 0:
		return Decision{}
	case count < TerminateAt:
		return Decision{Level: count, Message: warningMessages[count-1]}
	case count == TerminateAt:
		return Decision{Level: TerminateAt, Message: warningMessages[TerminateAt-1], Terminate: true}
	default:
		return Decision{Level: TerminateAt, Message: warningMessages[TerminateAt-1]}
	}
}
