// Package seed holds the demo dataset: eight accounts, eight posts with their
// likes and retweets, a few follow edges and notifications.
package seed

import (
	"context"
	"time"

	"microblog/domain/notification"
	"microblog/domain/post"
	"microblog/domain/user"
	"microblog/storage"
)

type account struct {
	handle, name, avatar, bio, location, website string
	verified                                     bool
	joined                                       string
}

var accounts = []account{
	{"johndoe", "John Doe", "https://images.pexels.com/photos/771742/pexels-photo-771742.jpeg?w=100&h=100&fit=crop&crop=face",
		"Software Developer | Tech Enthusiast | Coffee Lover ☕️", "San Francisco, CA", "https://johndoe.dev", false, "2020-03-15"},
	{"sarahchen", "Sarah Chen", "https://images.pexels.com/photos/1239291/pexels-photo-1239291.jpeg?w=100&h=100&fit=crop&crop=face",
		"UX Designer | Digital Artist | Mountain Hiker 🏔️", "Seattle, WA", "https://sarahchen.design", true, "2019-07-22"},
	{"mikejohnson", "Mike Johnson", "https://images.pexels.com/photos/1222271/pexels-photo-1222271.jpeg?w=100&h=100&fit=crop&crop=face",
		"Product Manager | Startup Advisor | Dog Dad 🐕", "Austin, TX", "https://mikejohnson.co", false, "2018-11-08"},
	{"emilywright", "Emily Wright", "https://images.pexels.com/photos/1181686/pexels-photo-1181686.jpeg?w=100&h=100&fit=crop&crop=face",
		"Data Scientist | AI Researcher | Book Lover 📚", "Boston, MA", "https://emilywright.ai", true, "2017-05-12"},
	{"alexkim", "Alex Kim", "https://images.pexels.com/photos/1043471/pexels-photo-1043471.jpeg?w=100&h=100&fit=crop&crop=face",
		"Frontend Developer | React Enthusiast | Gaming 🎮", "Los Angeles, CA", "https://alexkim.dev", false, "2021-01-30"},
	{"lisagarcia", "Lisa Garcia", "https://images.pexels.com/photos/1130626/pexels-photo-1130626.jpeg?w=100&h=100&fit=crop&crop=face",
		"Marketing Director | Content Creator | Yoga Instructor 🧘‍♀️", "Miami, FL", "https://lisagarcia.com", true, "2019-09-18"},
	{"davidlee", "David Lee", "https://images.pexels.com/photos/1121796/pexels-photo-1121796.jpeg?w=100&h=100&fit=crop&crop=face",
		"Backend Developer | Cloud Architect | Cyclist 🚴‍♂️", "Denver, CO", "https://davidlee.tech", false, "2020-06-25"},
	{"rachelgreen", "Rachel Green", "https://images.pexels.com/photos/1181424/pexels-photo-1181424.jpeg?w=100&h=100&fit=crop&crop=face",
		"Fashion Designer | Sustainability Advocate | Cat Mom 🐱", "New York, NY", "https://rachelgreen.fashion", true, "2018-03-07"},
}

type entry struct {
	author      int64
	hoursAgo    int
	text        string
	replies     int
	hashtags    []string
	likedBy     []int64
	retweetedBy []int64
}

// entries are listed oldest first and get ids 1..8 in that order.
var entries = []entry{
	{1, 30, "Coffee and code - the perfect combination for a productive morning! Working on a new JavaScript framework that could revolutionize state management. Stay tuned! ☕️💻",
		19, []string{"JavaScript", "Coding"}, []int64{2, 3, 5, 7, 8}, []int64{3, 5}},
	{8, 24, "Sustainable fashion isn't just a trend. It's the future. Every small choice we make impacts our planet. Proud to announce our new eco-friendly collection made from 100% recycled materials! 🌱♻️",
		56, []string{"SustainableFashion", "EcoFriendly"}, []int64{1, 2, 4, 6}, []int64{2, 6, 1}},
	{7, 18, "Deployed our first serverless architecture on AWS today. The scalability and cost-efficiency are impressive. Sometimes the old saying is true: less is more. #CloudComputing #Serverless ☁️",
		8, []string{"CloudComputing", "Serverless"}, []int64{1, 3, 5}, []int64{5}},
	{6, 12, "Content marketing tip: Authenticity beats perfection every time. Your audience wants to connect with real stories, not polished facades. Share your journey, including the struggles! ✨💪",
		34, []string{"ContentMarketing", "Authenticity"}, []int64{1, 2, 3, 5, 7}, []int64{2, 4, 7}},
	{5, 8, "React 18 concurrent features are game-changing! The new Suspense boundaries make loading states so much smoother. Here's what I built today with the new features. #React18 #WebDev 💻",
		12, []string{"React18", "WebDev"}, []int64{1, 6, 8}, []int64{1}},
	{3, 6, "Product launch day! After 6 months of hard work, we're finally releasing version 2.0. Thank you to the amazing team that made this possible. #ProductLaunch #TeamWork 🎉",
		15, []string{"ProductLaunch", "TeamWork"}, []int64{1, 2, 4, 7}, []int64{2, 8}},
	{4, 4, "Machine Learning breakthrough! Our new algorithm improved prediction accuracy by 23%. The future of AI is looking brighter every day. Can't wait to share more details at the conference next week! 🚀🤖",
		28, []string{"MachineLearning", "AI"}, []int64{1, 3, 5}, []int64{1, 6}},
	{2, 2, "Just finished designing a new mobile app interface! The user testing results are amazing. Sometimes the simplest solutions are the most effective. #UXDesign #MobileFirst 📱✨",
		5, []string{"UXDesign", "MobileFirst"}, nil, nil},
}

// Snapshot builds the demo dataset with timestamps relative to now. Counters
// are left for the store to derive.
func Snapshot(now time.Time) *storage.Snapshot {
	snap := &storage.Snapshot{}
	for i, a := range accounts {
		joined, _ := time.Parse(time.DateOnly, a.joined)
		snap.Users = append(snap.Users, &user.User{
			Id:          int64(i + 1),
			Handle:      a.handle,
			DisplayName: a.name,
			Bio:         a.bio,
			Location:    a.location,
			Avatar:      a.avatar,
			Website:     a.website,
			Verified:    a.verified,
			JoinedAt:    joined.UTC(),
		})
	}

	for i, e := range entries {
		snap.Posts = append(snap.Posts, &post.Post{
			Id:          int64(i + 1),
			AuthorId:    e.author,
			Text:        e.text,
			CreatedAt:   now.Add(-time.Duration(e.hoursAgo) * time.Hour),
			ReplyCount:  e.replies,
			LikedBy:     post.NewUserSet(e.likedBy...),
			RetweetedBy: post.NewUserSet(e.retweetedBy...),
			Hashtags:    e.hashtags,
			Mentions:    []string{},
		})
	}

	ago := func(h int) time.Time { return now.Add(-time.Duration(h) * time.Hour) }
	snap.Follows = []user.Follow{
		{FollowerId: 1, FolloweeId: 2, CreatedAt: ago(72)},
		{FollowerId: 1, FolloweeId: 3, CreatedAt: ago(48)},
		{FollowerId: 1, FolloweeId: 4, CreatedAt: ago(36)},
		{FollowerId: 4, FolloweeId: 1, CreatedAt: ago(3)},
	}

	snap.Notifications = []*notification.Notification{
		{Id: "ntf-seed-follow", Seq: 1, Subject: notification.Follow{}, ActorId: 4, TargetUserId: 1, CreatedAt: ago(3), Read: true},
		{Id: "ntf-seed-retweet", Seq: 2, Subject: notification.Retweet{PostId: 1}, ActorId: 3, TargetUserId: 1, CreatedAt: ago(2)},
		{Id: "ntf-seed-like", Seq: 3, Subject: notification.Like{PostId: 1}, ActorId: 2, TargetUserId: 1, CreatedAt: ago(1)},
	}
	return snap
}

// Load imports the demo dataset when store is empty and reports whether it
// did.
func Load(ctx context.Context, store *storage.EngagementStore, now time.Time) (bool, error) {
	if !store.Empty() {
		return false, nil
	}
	if err := store.Import(ctx, Snapshot(now)); err != nil {
		return false, err
	}
	return true, nil
}
