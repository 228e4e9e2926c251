package fewshot

// InstructionPrompt opens every request, before the labelled examples.
const InstructionPrompt = "I am going to show you pictures of some entities, for each picture, I will provide the entity's name. " +
	"Your first task is to learn which name belongs to which entity. " +
	"After that, I will show you a new picture. Your second task is to tell me the names of any of my entities that you recognize in this new picture."

// TestInstruction precedes the image being classified.
const TestInstruction = "The following is the test image, is there any entity you know in it?"

// labelPrefix is prepended to each entity name; the name follows the colon.
const labelPrefix = "entity name: "

func entityLabel(name string) string { return labelPrefix + name }
