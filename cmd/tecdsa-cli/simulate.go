package main

import (
	"encoding/hex"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/zeebo/blake3"

	"github.com/luxfi/tecdsa/internal/test"
	"github.com/luxfi/tecdsa/pkg/types"
)

func newLogger() *logrus.Logger {
	log := logrus.New()
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

func buildSubnet(log *logrus.Logger) (*test.Subnet, error) {
	if threshold < 1 || threshold > numNodes {
		return nil, fmt.Errorf("invalid threshold %d for %d nodes", threshold, numNodes)
	}
	return test.NewSubnet(numNodes, threshold,
		test.WithSubnetLogger(log),
		test.WithTargetQuadruples(pipeline))
}

func runSimulate(cmd *cobra.Command, args []string) error {
	log := newLogger()
	subnet, err := buildSubnet(log)
	if err != nil {
		return err
	}

	hash := blake3.Sum256([]byte(message))
	req := &types.SignatureRequest{
		ID:          "request-1",
		MessageHash: hash[:],
		Threshold:   threshold,
		Signers:     subnet.Tips.FinalizedTip().Nodes.Copy(),
	}
	subnet.Submit(req)
	log.WithFields(logrus.Fields{
		"nodes":     numNodes,
		"threshold": threshold,
		"request":   req.ID,
	}).Info("subnet started")

	for i := 0; i < rounds; i++ {
		if err := subnet.Round(); err != nil {
			return fmt.Errorf("round %d: %w", i+1, err)
		}
		if sig, ok := subnet.SignatureFor(req.ID); ok {
			fmt.Printf("signature produced after %d rounds\n", i+1)
			fmt.Printf("  message:   %q\n", message)
			fmt.Printf("  signature: %s\n", hex.EncodeToString(sig.Raw))
			ok := test.VerifySignature(subnet.Key.PubKey(), req, sig)
			fmt.Printf("  verifies:  %v\n", ok)
			if !ok {
				return fmt.Errorf("produced signature does not verify")
			}
			return nil
		}
	}
	return fmt.Errorf("no signature after %d rounds", rounds)
}

func runPayload(cmd *cobra.Command, args []string) error {
	log := newLogger()
	subnet, err := buildSubnet(log)
	if err != nil {
		return err
	}
	if err := subnet.RunRounds(rounds); err != nil {
		return err
	}

	tip := subnet.Tips.FinalizedTip()
	raw, err := tip.Payload.MarshalCanonical()
	if err != nil {
		return err
	}
	fmt.Printf("height:      %d\n", tip.Height)
	fmt.Printf("in creation: %d\n", len(tip.Payload.InCreation))
	fmt.Printf("available:   %d\n", len(tip.Payload.Available))
	fmt.Printf("ongoing:     %d\n", len(tip.Payload.Ongoing))
	fmt.Printf("canonical payload (%d bytes):\n%s\n", len(raw), hex.EncodeToString(raw))

	// The canonical form must survive a round trip.
	decoded, err := types.UnmarshalPayload(raw)
	if err != nil {
		return err
	}
	again, err := decoded.MarshalCanonical()
	if err != nil {
		return err
	}
	if hex.EncodeToString(raw) != hex.EncodeToString(again) {
		return fmt.Errorf("canonical payload round trip diverged")
	}
	fmt.Println("round trip:  ok")
	return nil
}
