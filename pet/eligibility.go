package pet

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/xaynetwork/xaynet-coordinator/key"
)

// TaskSum and TaskUpdate are appended to the round seed before signing to
// produce each task's signature (spec §4.3 "Task signatures"). Exported so
// the request pipeline and the participant state machine both build the
// exact same bytes without redeclaring the strings.
const (
	TaskSum    = "sum"
	TaskUpdate = "update"
)

func taskMessage(seed RoundSeed, task string) []byte {
	msg := make([]byte, 0, len(seed)+len(task))
	msg = append(msg, seed[:]...)
	msg = append(msg, task...)
	return msg
}

// TaskSignature computes the deterministic signature that both decides and
// proves a participant's eligibility for a task: sign_sk(round_seed ∥ task).
func TaskSignature(signer *key.SigningKeyPair, seed RoundSeed, task string) []byte {
	return signer.Sign(taskMessage(seed, task))
}

// SumTaskSignature and UpdateTaskSignature are the two task signatures spec
// §4.3 names; pinning the task strings here keeps coordinator and
// participant from drifting on the exact bytes signed.
func SumTaskSignature(signer *key.SigningKeyPair, seed RoundSeed) []byte {
	return TaskSignature(signer, seed, TaskSum)
}

func UpdateTaskSignature(signer *key.SigningKeyPair, seed RoundSeed) []byte {
	return TaskSignature(signer, seed, TaskUpdate)
}

// VerifyTaskSignature checks that sig is genuinely pk's signature over
// (seed, task), without applying any probability threshold. Spec §9 warns
// against skipping this even when only proving identity, not fresh
// eligibility, matters (e.g. a sum2 submission's sum task signature).
func VerifyTaskSignature(pk key.SigningPublicKey, seed RoundSeed, task string, sig []byte) error {
	if err := key.Verify(pk, taskMessage(seed, task), sig); err != nil {
		return fmt.Errorf("task signature: %w", err)
	}
	return nil
}

// VerifyEligibility is the single shared check spec §9 asks for: it first
// verifies sig is genuinely pk's signature (so a participant cannot present
// someone else's qualifying signature), then applies the probability
// threshold. The coordinator's request pipeline calls this; the participant
// applies IsEligible directly to the signatures it produced itself.
func VerifyEligibility(pk key.SigningPublicKey, seed RoundSeed, task string, sig []byte, probability float64) error {
	if err := VerifyTaskSignature(pk, seed, task, sig); err != nil {
		return err
	}
	if !IsEligible(sig, probability) {
		return fmt.Errorf("eligibility: signature does not meet probability threshold")
	}
	return nil
}

// VerifySumEligibility and VerifyUpdateEligibility pin the task string for
// their respective messages.
func VerifySumEligibility(pk key.SigningPublicKey, seed RoundSeed, sig []byte, probability float64) error {
	return VerifyEligibility(pk, seed, TaskSum, sig, probability)
}

func VerifyUpdateEligibility(pk key.SigningPublicKey, seed RoundSeed, sig []byte, probability float64) error {
	return VerifyEligibility(pk, seed, TaskUpdate, sig, probability)
}

// maxHash is 2^256 - 1, the denominator in spec §4.3's eligibility formula
// for a 256-bit hash.
var maxHash = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// IsEligible is the single shared eligibility check spec §9 calls for
// ("several locations compute eligibility; use a single helper to avoid
// drift"): a signature σ qualifies for a task with probability p iff
// int(H(σ)) / (2^|H|-1) ≤ p. Because the signature is deterministic given
// (sk, seed), this is pure and re-derivable by both sides of the protocol.
func IsEligible(sig []byte, probability float64) bool {
	if probability <= 0 {
		return false
	}
	if probability >= 1 {
		return true
	}
	h := sha256.Sum256(sig)
	numerator := new(big.Float).SetInt(new(big.Int).SetBytes(h[:]))
	ratio := new(big.Float).Quo(numerator, new(big.Float).SetInt(maxHash))
	return ratio.Cmp(big.NewFloat(probability)) <= 0
}
