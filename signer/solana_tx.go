package signer

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/vitwit/walletpay/types"
)

// SolanaSender submits signed transactions. *rpc.Client satisfies it.
type SolanaSender interface {
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// buildSolanaTransfer builds an unsigned system transfer anchored at the
// request's checkpoint blockhash, with the fee payer as the sender.
func buildSolanaTransfer(req types.TransferRequest) (*solana.Transaction, error) {
	from, err := solana.PublicKeyFromBase58(req.FeePayer())
	if err != nil {
		return nil, fmt.Errorf("invalid fee payer: %w", err)
	}
	to, err := solana.PublicKeyFromBase58(req.Destination())
	if err != nil {
		return nil, fmt.Errorf("invalid destination: %w", err)
	}
	blockhash, err := solana.HashFromBase58(req.Checkpoint().BlockHash)
	if err != nil {
		return nil, fmt.Errorf("invalid checkpoint blockhash: %w", err)
	}

	return solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(req.Amount(), from, to).Build(),
		},
		blockhash,
		solana.TransactionPayer(from),
	)
}

// checkSolanaTransfer verifies that a transaction signed elsewhere is exactly
// the transfer that was requested.
func checkSolanaTransfer(tx *solana.Transaction, req types.TransferRequest) error {
	if got := tx.Message.RecentBlockhash.String(); got != req.Checkpoint().BlockHash {
		return fmt.Errorf("blockhash %s, expected %s", got, req.Checkpoint().BlockHash)
	}
	if len(tx.Message.Instructions) != 1 {
		return fmt.Errorf("expected 1 instruction, got %d", len(tx.Message.Instructions))
	}
	if len(tx.Message.AccountKeys) == 0 || tx.Message.AccountKeys[0].String() != req.FeePayer() {
		return fmt.Errorf("fee payer does not match %s", req.FeePayer())
	}

	inst := tx.Message.Instructions[0]
	if int(inst.ProgramIDIndex) >= len(tx.Message.AccountKeys) {
		return fmt.Errorf("program index out of range")
	}
	if !tx.Message.AccountKeys[inst.ProgramIDIndex].Equals(solana.SystemProgramID) {
		return fmt.Errorf("not a system program instruction")
	}

	accountMetas := make([]*solana.AccountMeta, len(inst.Accounts))
	for i, accIdx := range inst.Accounts {
		if int(accIdx) >= len(tx.Message.AccountKeys) {
			return fmt.Errorf("account index out of range")
		}
		pub := tx.Message.AccountKeys[accIdx]
		writable, err := tx.Message.IsWritable(pub)
		if err != nil {
			return fmt.Errorf("failed to decode transaction: %w", err)
		}
		accountMetas[i] = &solana.AccountMeta{
			PublicKey:  pub,
			IsSigner:   tx.Message.IsSigner(pub),
			IsWritable: writable,
		}
	}

	sysInst, err := system.DecodeInstruction(accountMetas, inst.Data)
	if err != nil {
		return fmt.Errorf("decode system instruction: %w", err)
	}
	transfer, ok := sysInst.Impl.(*system.Transfer)
	if !ok || transfer.Lamports == nil {
		return fmt.Errorf("not a transfer instruction")
	}

	from := accountMetas[0].PublicKey
	to := accountMetas[1].PublicKey
	switch {
	case from.String() != req.FeePayer():
		return fmt.Errorf("transfer source %s, expected %s", from, req.FeePayer())
	case to.String() != req.Destination():
		return fmt.Errorf("transfer destination %s, expected %s", to, req.Destination())
	case *transfer.Lamports != req.Amount():
		return fmt.Errorf("transfer amount %d, expected %d", *transfer.Lamports, req.Amount())
	}
	return nil
}
