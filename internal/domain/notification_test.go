package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		in   CreateNotificationInput
		ok   bool
	}{
		{"valid", CreateNotificationInput{UserID: "u1", Type: TypeLike}, true},
		{"missing user", CreateNotificationInput{Type: TypeLike}, false},
		{"unknown type", CreateNotificationInput{UserID: "u1", Type: "POKE"}, false},
		{"empty type", CreateNotificationInput{UserID: "u1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidInput))
		})
	}
}

func TestSelfTriggered(t *testing.T) {
	assert.True(t, CreateNotificationInput{UserID: "u1", ActorID: Ref("u1")}.SelfTriggered())
	assert.False(t, CreateNotificationInput{UserID: "u1", ActorID: Ref("u2")}.SelfTriggered())
	assert.False(t, CreateNotificationInput{UserID: "u1"}.SelfTriggered())
}

func TestDedupKey_NilMatchesOnlyNil(t *testing.T) {
	key := CreateNotificationInput{UserID: "u1", ActorID: Ref("a1"), Type: TypeFollow}.Key()

	assert.True(t, key.Matches(&Notification{UserID: "u1", ActorID: Ref("a1"), Type: TypeFollow}))
	assert.False(t, key.Matches(&Notification{UserID: "u1", ActorID: Ref("a1"), Type: TypeFollow, PostID: Ref("p1")}))
	assert.False(t, key.Matches(&Notification{UserID: "u1", Type: TypeFollow}))
	assert.False(t, key.Matches(&Notification{UserID: "u1", ActorID: Ref("a1"), Type: TypeLike}))
}

func TestDedupKey_StringDistinguishesNilFromEmpty(t *testing.T) {
	empty := ""
	a := DedupKey{UserID: "u1", Type: TypeLike}
	b := DedupKey{UserID: "u1", Type: TypeLike, PostID: &empty}
	assert.NotEqual(t, a.String(), b.String())

	c := DedupKey{UserID: "u1", Type: TypeLike, PostID: Ref("p1")}
	d := DedupKey{UserID: "u1", Type: TypeLike, PostID: Ref("p1")}
	assert.Equal(t, c.String(), d.String())
}

func TestRemovalKey(t *testing.T) {
	n := &Notification{UserID: "u2", ActorID: Ref("u1"), Type: TypeComment, PostID: Ref("p1"), CommentID: Ref("c1")}

	assert.True(t, RemovalKey{UserID: "u2", ActorID: "u1", Type: TypeComment}.Matches(n))
	assert.True(t, RemovalKey{UserID: "u2", ActorID: "u1", Type: TypeComment, CommentID: Ref("c1")}.Matches(n))
	assert.False(t, RemovalKey{UserID: "u2", ActorID: "u1", Type: TypeComment, CommentID: Ref("c2")}.Matches(n))
	assert.False(t, RemovalKey{UserID: "u2", ActorID: "u9", Type: TypeComment}.Matches(n))
	assert.False(t, RemovalKey{UserID: "u2", ActorID: "u1", Type: TypeReply}.Matches(n))
	assert.False(t, RemovalKey{UserID: "u2", ActorID: "", Type: TypeSystem}.Matches(&Notification{UserID: "u2", Type: TypeSystem}))

	in := CreateNotificationInput{UserID: "u2", ActorID: Ref("u1"), Type: TypeLike, PostID: Ref("p1")}
	assert.True(t, RemovalKey{UserID: "u2", ActorID: "u1", Type: TypeLike, PostID: Ref("p1")}.MatchesInput(in))
	assert.False(t, RemovalKey{UserID: "u2", ActorID: "u1", Type: TypeLike, PostID: Ref("p2")}.MatchesInput(in))
}

func TestRefDeref(t *testing.T) {
	assert.Nil(t, Ref(""))
	assert.Equal(t, "x", Deref(Ref("x")))
	assert.Equal(t, "", Deref(nil))
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "notifications:user:u1", Channel("u1"))
}
