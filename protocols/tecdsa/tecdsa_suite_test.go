package tecdsa_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/zeebo/blake3"

	"github.com/luxfi/tecdsa/internal/test"
	"github.com/luxfi/tecdsa/pkg/party"
	"github.com/luxfi/tecdsa/pkg/types"
)

func TestTecdsaSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Tecdsa Suite")
}

var _ = Describe("subnet signing", func() {
	var subnet *test.Subnet

	BeforeEach(func() {
		var err error
		subnet, err = test.NewSubnet(4, 3, test.WithTargetQuadruples(2))
		Expect(err).NotTo(HaveOccurred())
	})

	submit := func(id types.RequestID, msg string) *types.SignatureRequest {
		hash := blake3.Sum256([]byte(msg))
		req := &types.SignatureRequest{
			ID:          id,
			MessageHash: hash[:],
			Threshold:   3,
			Signers:     subnet.Tips.FinalizedTip().Nodes.Copy(),
		}
		subnet.Submit(req)
		return req
	}

	It("produces a verifiable signature for a submitted request", func() {
		req := submit("req-1", "transfer 5 to bob")

		var sig *types.Signature
		for i := 0; i < 20 && sig == nil; i++ {
			Expect(subnet.Round()).To(Succeed())
			sig, _ = subnet.SignatureFor("req-1")
		}
		Expect(sig).NotTo(BeNil())
		Expect(test.VerifySignature(subnet.Key.PubKey(), req, sig)).To(BeTrue())
	})

	It("answers concurrent requests independently", func() {
		reqA := submit("req-a", "first message")
		reqB := submit("req-b", "second message")

		for i := 0; i < 25; i++ {
			Expect(subnet.Round()).To(Succeed())
			_, okA := subnet.SignatureFor("req-a")
			_, okB := subnet.SignatureFor("req-b")
			if okA && okB {
				break
			}
		}
		sigA, okA := subnet.SignatureFor("req-a")
		sigB, okB := subnet.SignatureFor("req-b")
		Expect(okA).To(BeTrue())
		Expect(okB).To(BeTrue())
		Expect(test.VerifySignature(subnet.Key.PubKey(), reqA, sigA)).To(BeTrue())
		Expect(test.VerifySignature(subnet.Key.PubKey(), reqB, sigB)).To(BeTrue())
		Expect(sigA.Raw).NotTo(Equal(sigB.Raw))
	})

	It("collects exactly one dealing per dealer per config", func() {
		for i := 0; i < 3; i++ {
			Expect(subnet.Round()).To(Succeed())
		}
		for _, node := range subnet.Nodes {
			counts := make(map[types.ConfigID]map[party.ID]int)
			for _, d := range node.Pool.Validated().Dealings() {
				if counts[d.ConfigID] == nil {
					counts[d.ConfigID] = make(map[party.ID]int)
				}
				counts[d.ConfigID][d.Dealer]++
			}
			for cfg, byDealer := range counts {
				for dealer, n := range byDealer {
					Expect(n).To(Equal(1), "config %s dealer %s", cfg, dealer)
				}
			}
		}
	})

	It("never signs a request withdrawn before a tuple was paired", func() {
		submit("req-1", "doomed message")
		// The pipeline has no complete tuple after a single round, so
		// the request cannot have been paired yet.
		Expect(subnet.Round()).To(Succeed())
		subnet.Withdraw("req-1")

		for i := 0; i < 6; i++ {
			Expect(subnet.Round()).To(Succeed())
		}
		_, ok := subnet.SignatureFor("req-1")
		Expect(ok).To(BeFalse())
		for _, node := range subnet.Nodes {
			for _, sh := range node.Pool.Validated().Shares() {
				Expect(sh.RequestID).NotTo(Equal(types.RequestID("req-1")))
			}
		}
	})
})
