package jointmax

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestJointMax(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "JointMax Suite")
}
