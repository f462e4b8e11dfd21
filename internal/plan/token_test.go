package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitTokens(t *testing.T) {
	role := AttrToken("addons/external-dns/identity", AttrRoleArn)

	frags := SplitTokens(`{"role-arn":"` + role + `"}`)
	if assert.Len(t, frags, 3) {
		assert.Equal(t, `{"role-arn":"`, frags[0].Text)
		assert.Equal(t, &TokenRef{ID: "addons/external-dns/identity", Attr: AttrRoleArn}, frags[1].Token)
		assert.Equal(t, `"}`, frags[2].Text)
	}

	frags = SplitTokens(role + role)
	assert.Len(t, frags, 2)

	frags = SplitTokens("plain ${AWS::Region}")
	assert.Equal(t, []Fragment{{Text: "plain ${AWS::Region}"}}, frags)

	assert.True(t, HasTokens("x"+AttrToken("a.b", AttrRoleName)))
	assert.Equal(t, ID("a.b"), SplitTokens(AttrToken("a.b", AttrRoleName))[0].Token.ID)
	assert.False(t, HasTokens("${wetwire:}"))
}

func TestLogicalID(t *testing.T) {
	tests := map[ID]string{
		"k8sAddOns/extrernal-dns/identity": "K8sAddOnsExtrernalDnsIdentity",
		"metrics-server":                   "MetricsServer",
		"cass-nodetool/namespace":          "CassNodetoolNamespace",
		"101-role":                         "R101Role",
		"aws_for_fluent.bit":               "AwsForFluentBit",
	}
	for in, want := range tests {
		assert.Equal(t, want, LogicalID(in), "LogicalID(%q)", in)
	}
}

func TestID(t *testing.T) {
	assert.Equal(t, ID("a/b"), ID("a").Child("b"))
	assert.Equal(t, ID("b"), ID("").Child("b"))
	assert.Equal(t, "b", ID("a/b").Base())
	assert.Equal(t, "a", ID("a").Base())
}

func TestReferences(t *testing.T) {
	arn := AttrToken("dns/identity", AttrRoleArn)
	name := AttrToken("argo/identity", AttrRoleName)

	m := &Manifest{ID: "m", Documents: []map[string]any{
		{"metadata": map[string]any{"annotations": map[string]any{"role": arn}}},
		{"args": []any{"--role=" + arn, name}},
	}}
	assert.Equal(t, []TokenRef{
		{ID: "dns/identity", Attr: AttrRoleArn},
		{ID: "argo/identity", Attr: AttrRoleName},
	}, References(m))

	assert.Equal(t, []TokenRef{{ID: "argo/identity", Attr: AttrRoleName}},
		References(&Output{ID: "o", Value: name}))
	assert.Empty(t, References(&HelmChart{ID: "h"}))
	assert.Empty(t, References(&ServiceAccount{ID: "s"}))
}
