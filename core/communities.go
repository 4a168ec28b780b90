package core

// DefaultCommunities seeds an empty document store
var DefaultCommunities = []Community{
	{
		ID:          "global-chat",
		Name:        "Global Chat",
		Description: "General discussion room for all topics and community introductions.",
		Color:       "bg-primary",
		Category:    "General",
		Rules: []string{
			"Be respectful and kind to all community members",
			"No spam, self-promotion, or off-topic content",
			"Keep discussions constructive and meaningful",
			"Report inappropriate behavior to moderators",
		},
		Moderators: []string{"CommunityMod", "GlobalAdmin"},
		IsActive:   true,
	},
	{
		ID:          "developer",
		Name:        "Developer",
		Description: "Technical discussions, code reviews, and development help.",
		Color:       "bg-emerald-500",
		Category:    "Technology",
		Rules: []string{
			"Share code snippets and technical resources",
			"Help others with programming questions",
			"No job postings without prior approval",
			"Keep discussions technical and relevant",
		},
		Moderators: []string{"DevLead", "TechModerator"},
		IsActive:   true,
	},
	{
		ID:          "world-news",
		Name:        "World News",
		Description: "Global news, current events, and world affairs discussion.",
		Color:       "bg-blue-500",
		Category:    "News",
		Rules: []string{
			"Share credible news sources only",
			"Maintain civil discourse on sensitive topics",
			"No misinformation or conspiracy theories",
			"Fact-check before sharing information",
		},
		Moderators: []string{"NewsEditor", "FactChecker"},
		IsActive:   true,
	},
	{
		ID:          "ai-tech",
		Name:        "AI & Tech",
		Description: "Artificial intelligence, technology innovations, and future trends.",
		Color:       "bg-purple-500",
		Category:    "Technology",
		Rules: []string{
			"Share AI research and tech innovations",
			"Discuss ethical implications of technology",
			"No fear-mongering about AI",
			"Support claims with credible sources",
		},
		Moderators: []string{"AIResearcher", "TechExpert"},
		IsActive:   true,
	},
	{
		ID:          "qa",
		Name:        "Q&A",
		Description: "Questions, answers, and knowledge sharing from the community.",
		Color:       "bg-amber-500",
		Category:    "Help & Support",
		Rules: []string{
			"Ask clear and specific questions",
			"Provide helpful and accurate answers",
			"Use search before asking duplicate questions",
			"Thank those who help you",
		},
		Moderators: []string{"HelpModerator", "KnowledgeExpert"},
		IsActive:   true,
	},
	{
		ID:          "announcements",
		Name:        "Announcements",
		Description: "Official updates, news, and important platform announcements.",
		Color:       "bg-orange-500",
		Category:    "Official",
		Rules: []string{
			"Official announcements only",
			"No spam or promotional content",
			"Keep discussions relevant to announcements",
			"Respect official communications",
		},
		Moderators: []string{"ForumTeam", "AnnouncementMod"},
		IsActive:   true,
	},
}
