package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	var nilNode *ContentNode
	assert.False(t, nilNode.IsFolder())
	assert.False(t, nilNode.IsFile())

	assert.True(t, NewFolder("f", "docs", time.Time{}).IsFolder())
	assert.True(t, NewFile("x", "a.txt", time.Time{}, 3).IsFile())
	assert.Equal(t, "folder", KindFolder.String())
	assert.Equal(t, "file", KindFile.String())
}

func TestMergeChildren_ReusesNodesByID(t *testing.T) {
	refreshed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sub := NewFolder("sub", "old-name", refreshed)
	sub.RefreshedAt = refreshed
	sub.Children = []*ContentNode{NewFile("deep", "deep.txt", refreshed, 1)}

	parent := NewFolder("root", "", time.Time{})
	parent.Children = []*ContentNode{sub, NewFile("gone", "gone.txt", refreshed, 1)}

	parent.MergeChildren([]*ContentNode{
		NewFolder("sub", "new-name", refreshed),
		NewFile("new", "new.txt", refreshed, 9),
	})

	require.Len(t, parent.Children, 2)
	assert.Same(t, sub, parent.Children[0])
	assert.Equal(t, "new-name", sub.Name)
	assert.Equal(t, refreshed, sub.RefreshedAt)
	assert.Len(t, sub.Children, 1, "reused folder keeps its own children")
	assert.Equal(t, "new", parent.Children[1].ID)
	assert.Nil(t, parent.ChildByID("gone"))
}

func TestMergeChildren_KindChangeReplacesNode(t *testing.T) {
	parent := NewFolder("root", "", time.Time{})
	old := NewFolder("x", "x", time.Time{})
	parent.Children = []*ContentNode{old}

	parent.MergeChildren([]*ContentNode{NewFile("x", "x", time.Time{}, 0)})

	require.Len(t, parent.Children, 1)
	assert.NotSame(t, old, parent.Children[0])
	assert.True(t, parent.Children[0].IsFile())
}
