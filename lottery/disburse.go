package lottery

// Disbursement pays the pool to the selected winner.
type Disbursement struct {
	channel Transferer
}

func NewDisbursement(channel Transferer) *Disbursement {
	return &Disbursement{channel: channel}
}

// Pay transfers amount to recipient. Any error of the underlying channel is
// reported as a TransferError.
func (d *Disbursement) Pay(recipient string, amount uint64) error {
	if err := d.channel.Transfer(recipient, amount); err != nil {
		return &TransferError{Recipient: recipient, Amount: amount, Err: err}
	}
	return nil
}
