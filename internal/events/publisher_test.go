package events

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubjectFor(t *testing.T) {
	require := require.New(t)

	listed := &Event{Type: TypeListed, AssetID: "7"}
	require.Equal("market.events.7", subjectFor(listed))

	// Mint events have no asset id yet; the subject must still end in
	// a non-empty token or JetStream refuses the publish.
	minted := &Event{Type: TypeMinted, TxHash: "0xdead"}
	require.Equal("market.events.mint", subjectFor(minted))

	for _, event := range []*Event{listed, minted} {
		subject := subjectFor(event)
		require.True(strings.HasPrefix(subject, SubjectPrefix+"."), subject)
		for _, token := range strings.Split(subject, ".") {
			require.NotEmpty(token, subject)
		}
		// Single token under the prefix, so the archiver's
		// "market.events.*" filter matches.
		require.Len(strings.Split(strings.TrimPrefix(subject, SubjectPrefix+"."), "."), 1, subject)
	}
}
