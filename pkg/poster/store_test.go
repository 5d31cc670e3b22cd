package poster_test

import (
	"encoding/json"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/xob0t/GoPoster/pkg/poster"
)

func TestStoreUpdate(t *testing.T) {
	Convey("Given an empty store", t, func() {
		store := poster.NewStore()

		Convey("It starts with every field undefined", func() {
			So(store.Snapshot(), ShouldResemble, poster.FormState{})
		})

		Convey("When a single field changes", func() {
			store.Update(map[string]any{"trainingName": "Alpha", "trainingNo": 3})
			before := store.Snapshot()
			fields, err := store.Update(map[string]any{"userName": "Lin"})

			Convey("Then only that key is merged and the others are untouched", func() {
				So(err, ShouldBeNil)
				So(fields, ShouldResemble, []poster.Field{poster.FieldUserName})
				after := store.Snapshot()
				So(after.UserName, ShouldEqual, "Lin")
				So(after.TrainingName, ShouldEqual, before.TrainingName)
				So(*after.TrainingNo, ShouldEqual, *before.TrainingNo)
			})
		})

		Convey("When the upload control's wrapper value is part of the change", func() {
			fields, err := store.Update(map[string]any{
				"userAvatarUpload": map[string]any{"file": "wrapper"},
				"userAvatar":       "data:image/png;base64,AAAA",
				"clockDays":        7,
			})

			Convey("Then transient and avatar keys are stripped", func() {
				So(err, ShouldBeNil)
				So(fields, ShouldResemble, []poster.Field{poster.FieldClockDays})
				So(store.Snapshot().UserAvatar, ShouldBeEmpty)
				So(*store.Snapshot().ClockDays, ShouldEqual, 7)
			})
		})

		Convey("When numbers arrive in the shapes form clients send", func() {
			var body map[string]any
			dec := json.NewDecoder(stringsReader(`{"trainingNo": 12, "clockDays": "5", "totalPoints": 98.0}`))
			dec.UseNumber()
			So(dec.Decode(&body), ShouldBeNil)
			_, err := store.Update(body)
			_, err2 := store.Update(map[string]any{"totalTargetCount": float64(40)})

			Convey("Then each is coerced to an integer", func() {
				So(err, ShouldBeNil)
				So(err2, ShouldBeNil)
				s := store.Snapshot()
				So(*s.TrainingNo, ShouldEqual, 12)
				So(*s.ClockDays, ShouldEqual, 5)
				So(*s.TotalPoints, ShouldEqual, 98)
				So(*s.TotalTargetCount, ShouldEqual, 40)
			})
		})

		Convey("When numbers fall outside their bounds", func() {
			store.Update(map[string]any{"trainingNo": 0, "clockDays": 30, "totalPoints": -4})

			Convey("Then they are clamped like the number inputs do", func() {
				s := store.Snapshot()
				So(*s.TrainingNo, ShouldEqual, 1)
				So(*s.ClockDays, ShouldEqual, 21)
				So(*s.TotalPoints, ShouldEqual, 0)
			})
		})

		Convey("When a value cannot be coerced", func() {
			fields, err := store.Update(map[string]any{"trainingNo": "three", "userName": "Lin"})

			Convey("Then the bad key is reported and the rest is merged", func() {
				So(errors.Is(err, poster.ErrInvalidValue), ShouldBeTrue)
				So(fields, ShouldResemble, []poster.Field{poster.FieldUserName})
				So(store.Snapshot().TrainingNo, ShouldBeNil)
			})
		})

		Convey("When a field is cleared", func() {
			store.Update(map[string]any{"totalPoints": 9, "userName": "Lin"})
			fields, _ := store.Update(map[string]any{"totalPoints": nil, "userName": ""})

			Convey("Then it is undefined again", func() {
				So(fields, ShouldResemble, []poster.Field{poster.FieldUserName, poster.FieldTotalPoints})
				So(store.Snapshot().TotalPoints, ShouldBeNil)
				So(store.Snapshot().UserName, ShouldBeEmpty)
			})
		})
	})
}

func TestStoreSubscribe(t *testing.T) {
	Convey("Given a store with a subscriber", t, func() {
		store := poster.NewStore()
		var changes []poster.Change
		cancel := store.Subscribe(func(c poster.Change) { changes = append(changes, c) })

		Convey("When a write changes a value", func() {
			store.Update(map[string]any{"trainingName": "Alpha"})

			Convey("Then the listener sees previous and next state", func() {
				So(changes, ShouldHaveLength, 1)
				So(changes[0].Prev.TrainingName, ShouldBeEmpty)
				So(changes[0].Next.TrainingName, ShouldEqual, "Alpha")
				So(changes[0].Has(poster.FieldTrainingName), ShouldBeTrue)
				So(changes[0].Has(poster.FieldClockDays), ShouldBeFalse)
			})
		})

		Convey("When a write repeats the current value", func() {
			store.Update(map[string]any{"trainingName": "Alpha"})
			store.Update(map[string]any{"trainingName": "Alpha", "userAvatarUpload": "x"})

			Convey("Then no second notification is sent", func() {
				So(changes, ShouldHaveLength, 1)
			})
		})

		Convey("When the avatar is set", func() {
			store.SetAvatar("data:image/png;base64,AAAA")
			store.SetAvatar("data:image/png;base64,AAAA")

			Convey("Then listeners are told once about userAvatar", func() {
				So(changes, ShouldHaveLength, 1)
				So(changes[0].Fields, ShouldResemble, []poster.Field{poster.FieldUserAvatar})
			})
		})

		Convey("When the subscription is cancelled", func() {
			cancel()
			cancel()
			store.Update(map[string]any{"userName": "Lin"})

			Convey("Then nothing more is delivered", func() {
				So(changes, ShouldBeEmpty)
			})
		})

		Convey("When the store is reset", func() {
			store.Update(map[string]any{"userName": "Lin", "clockDays": 3})
			store.Reset()

			Convey("Then every field is undefined and listeners hear about it", func() {
				So(store.Snapshot(), ShouldResemble, poster.FormState{})
				So(changes, ShouldHaveLength, 2)
				So(changes[1].Fields, ShouldResemble, []poster.Field{poster.FieldUserName, poster.FieldClockDays})
			})
		})
	})
}
