package pattern

import "github.com/gzhole/textgate/internal/signal"

// Built-in source names.
const (
	HarmSource      = "harm_pattern"
	JailbreakSource = "jailbreak_pattern"
	IntegritySource = "integrity_pattern"
)

// Builtin returns a fresh copy of the named built-in table.
func Builtin(name string) (Table, bool) {
	switch name {
	case HarmSource:
		return HarmTable(), true
	case JailbreakSource:
		return JailbreakTable(), true
	case IntegritySource:
		return IntegrityTable(), true
	}
	return Table{}, false
}

// BuiltinNames lists the built-in tables in default pipeline order.
func BuiltinNames() []string {
	return []string{HarmSource, JailbreakSource, IntegritySource}
}

// complianceIndicators are shared by every built-in table.
func complianceIndicators() []string {
	return []string{
		"here's how to",
		"here is how to",
		"here's how you",
		"step 1:",
		"step one:",
		"first, you need",
		"first you need",
		"first you'll need",
		"you will need the following",
		"ingredients you need",
		"sure, here's",
		"sure, here is",
		"certainly! here",
		"as requested, here",
		"the recipe is as follows",
		"follow these steps",
	}
}

// ---------------------------------------------------------------------------
// harm_pattern
// ---------------------------------------------------------------------------

// HarmTable covers violence, weapons, hazardous materials, fraud, cyber
// intrusion, physical-safety hazards and self-harm.
func HarmTable() Table {
	return Table{
		Name:       HarmSource,
		Version:    "1.2.0",
		Compliance: complianceIndicators(),
		Rules: []Rule{
			{
				ID:          "harm-weapons",
				Category:    signal.CategoryWeapons,
				Base:        0.75,
				Description: "Instructions for building weapons or explosives",
				Patterns: []string{
					`how\s+to\s+(make|build|assemble|construct|create|rig)\s+(a\s+|an\s+|your\s+own\s+)?(bomb|pipe\s*bomb|explosive|ied|grenade|detonator|molotov)`,
					`(make|build|assemble)\s+(a\s+|an\s+)?(bomb|explosive device|pipe\s*bomb|car\s*bomb)`,
					`\b(detonat\w*|blasting cap|shrapnel)\b.{0,40}\b(homemade|improvised|diy|build|make)\b`,
					`\b(homemade|improvised|diy)\s+(explosive|bomb|gun|firearm|silencer|suppressor)`,
					`(3d[\s-]?print\w*|ghost)\s+(gun|firearm|receiver|lower)`,
					`convert\w*\s+.{0,30}\b(semi[\s-]?auto\w*|rifle|pistol)\b.{0,30}\b(full[\s-]?auto\w*|automatic)`,
					`\b(thermite|napalm|tatp|anfo)\b.{0,40}\b(make|mix|prepare|recipe|synthesi[sz]e)`,
				},
			},
			{
				ID:          "harm-hazardous",
				Category:    signal.CategoryHazardous,
				Base:        0.75,
				Description: "Production of chemical, biological or radiological agents",
				Patterns: []string{
					`(synthesi[sz]e|produce|make|manufacture|cook|extract)\s+.{0,30}\b(sarin|vx|tabun|soman|ricin|anthrax|mustard gas|nerve agent|chlorine gas|phosgene)\b`,
					`\b(sarin|vx|ricin|anthrax|nerve agent|botulinum)\b.{0,40}\b(synthesis|recipe|precursor|weaponi[sz]\w*|aerosoli[sz]\w*)`,
					`(weaponi[sz]e|culture|aerosoli[sz]e)\s+.{0,30}\b(pathogen|virus|bacteria|toxin|spores?)\b`,
					`(dirty bomb|radiological dispersal|enrich\w*\s+uranium)`,
					`(cook|synthesi[sz]e|make)\s+(meth|methamphetamine|fentanyl|heroin|crack)\b`,
					`mix(ing)?\s+(bleach|ammonia)\s+(and|with)\s+(ammonia|bleach|vinegar)\s+to\s+(make|create|produce)`,
				},
			},
			{
				ID:          "harm-violence",
				Category:    signal.CategoryViolence,
				Base:        0.70,
				Description: "Planning or facilitating violence against people",
				Patterns: []string{
					`how\s+(do\s+i|to|can\s+i)\s+(kill|murder|assassinate|strangle|poison)\s+(someone|a\s+person|my|him|her|them|people)`,
					`(best|easiest|quickest)\s+way\s+to\s+(kill|murder|hurt|injure|torture)\s+`,
					`(plan|planning|carry\s+out)\s+(a\s+)?(mass\s+shooting|massacre|terror\w*\s+attack|school\s+shooting)`,
					`(get\s+away\s+with|cover\s+up)\s+(a\s+)?(murder|killing|assault)`,
					`(dispose\s+of|hide|get\s+rid\s+of)\s+(a|the)\s+(body|corpse)`,
					`(kidnap|abduct)\w*\s+(a\s+)?(child|kid|person|someone)`,
				},
			},
			{
				ID:          "harm-fraud",
				Category:    signal.CategoryFraud,
				Base:        0.65,
				Description: "Fraud, scams or financial crime",
				Patterns: []string{
					`(write|create|draft|generate)\s+(a\s+|an\s+)?(phishing|scam)\s+(email|message|text|page|site)`,
					`(launder|laundering)\s+(money|cash|funds|proceeds)`,
					`(forge|counterfeit|fake)\s+(a\s+)?(passport|id|identity card|driver'?s license|check|cheque|banknotes?|currency|signature)`,
					`(steal|clone|skim)\w*\s+(credit card|card|bank)\s*(numbers?|details|data)?`,
					`(commit|get\s+away\s+with)\s+(tax|insurance|wire|bank)\s+fraud`,
					`(ponzi|pyramid)\s+scheme\s+.{0,20}(run|start|set\s+up)|(run|start|set\s+up)\s+a\s+(ponzi|pyramid)\s+scheme`,
					`(identity\s+theft|steal\s+(someone'?s|an?)\s+identity)`,
				},
			},
			{
				ID:          "harm-cyber",
				Category:    signal.CategoryCyberIntrusion,
				Base:        0.70,
				Description: "Unauthorized intrusion or malicious software",
				Patterns: []string{
					`(write|create|build|code|develop)\s+(a\s+|an\s+|some\s+)?(ransomware|keylogger|malware|trojan|rootkit|botnet|worm|spyware|credential stealer)`,
					`(hack|break)\s+into\s+(someone'?s|my\s+ex'?s|a|an|the)\s+\w+`,
					`(bypass|crack|brute[\s-]?force)\s+(the\s+)?(password|2fa|mfa|authentication|login)\s+(on|of|for)\s+`,
					`(ddos|denial[\s-]of[\s-]service)\s+(attack\s+)?(on|against)\s+`,
					`(exploit|weaponi[sz]e)\s+(cve-\d{4}-\d+|a\s+zero[\s-]?day|this\s+vulnerability)\s+(on|against|to)`,
					`(exfiltrate|steal|dump)\s+(the\s+)?(database|credentials|password hashes|customer data)\s+(from|of)`,
					`(sql\s+injection|xss)\s+payload\s+(to|for)\s+(steal|dump|access)`,
				},
			},
			{
				ID:          "harm-physical-safety",
				Category:    signal.CategoryPhysicalSafety,
				Base:        0.60,
				Description: "Tampering that endangers physical safety",
				Patterns: []string{
					`(disable|bypass|remove|tamper\s+with)\s+(the\s+)?(brakes?|airbags?|smoke detector|carbon monoxide detector|safety valve|circuit breaker|pressure relief)`,
					`(cut|sabotage|tamper\s+with)\s+(someone'?s|his|her|their|the)\s+(brake lines?|gas line|power lines?)`,
					`(poison|contaminate)\s+(the\s+)?(water supply|food supply|reservoir)`,
					`(derail|crash)\s+(a\s+|the\s+)?(train|plane|aircraft)`,
					`(cause|start)\s+(a\s+)?(gas leak|house fire|explosion)\s+(without|that\s+looks)`,
				},
			},
			{
				ID:          "harm-self-harm",
				Category:    signal.CategorySelfHarm,
				Base:        0.70,
				Description: "Self-harm or suicide methods",
				Patterns: []string{
					`(best|easiest|painless|quickest)\s+(way|method)s?\s+to\s+(kill\s+myself|die|end\s+my\s+life|commit\s+suicide)`,
					`how\s+(many|much)\s+.{0,30}\b(pills|tablets|mg)\b.{0,30}\b(to\s+die|lethal|overdose|kill\s+myself)`,
					`(how\s+to|ways\s+to)\s+(cut|hurt|harm)\s+myself`,
					`(lethal|fatal)\s+dose\s+of\s+\w+\s+(to|for)\s+(kill|end)`,
					`i\s+want\s+to\s+(kill\s+myself|end\s+it\s+all|die)\b.{0,40}\b(how|method|way)`,
				},
			},
		},
	}
}

// ---------------------------------------------------------------------------
// jailbreak_pattern
// ---------------------------------------------------------------------------

// JailbreakTable covers instruction override, persona override, prompt
// extraction and jailbreak framing.
func JailbreakTable() Table {
	return Table{
		Name:       JailbreakSource,
		Version:    "1.1.0",
		Compliance: complianceIndicators(),
		Rules: []Rule{
			{
				ID:          "scope-instruction-override",
				Category:    signal.CategoryInstructionOverride,
				Base:        0.80,
				Description: "Attempts to override prior instructions",
				Patterns: []string{
					`ignore\s+(all\s+)?(of\s+)?(the\s+|your\s+)?(previous|prior|above|earlier)\s+(instructions?|rules?|prompts?|directions?)`,
					`disregard\s+(all\s+)?(your|the|any)\s+(previous\s+|prior\s+)?(instructions?|rules?|guidelines?|programming)`,
					`forget\s+(all\s+)?(your|previous|prior|everything)\s*(instructions?|rules?|you\s+were\s+told)?`,
					`override\s+(all\s+)?(your\s+)?(safety|security|content)\s+(rules?|protocols?|guidelines?|filters?|policy|policies)`,
					`new\s+instructions?\s*:`,
					`(^|\s)system\s*:\s*(you\s+are|ignore|forget|override)`,
					`\[inst\]|<\|im_start\|>\s*system|begin\s+hidden\s+instructions?`,
					`important\s*:\s*(ignore|disregard|override)`,
				},
			},
			{
				ID:          "scope-persona-override",
				Category:    signal.CategoryPersonaOverride,
				Base:        0.80,
				Description: "Attempts to replace the assistant persona with an unrestricted one",
				Patterns: []string{
					`\byou\s+are\s+(now\s+)?dan\b|\bdo\s+anything\s+now\b`,
					`you\s+are\s+now\s+(free|unrestricted|unfiltered|uncensored|jailbroken)`,
					`(pretend|act\s+as\s+if|imagine)\s+(that\s+)?you\s+(have|had)\s+no\s+(restrictions|rules|guidelines|filters|limits)`,
					`(act|behave|respond)\s+as\s+(an?\s+)?(unrestricted|unfiltered|uncensored|evil|amoral)\s+(ai|assistant|model|version)`,
					`(enter|enable|activate|switch\s+to)\s+(developer|god|jailbreak|dan|unrestricted)\s+mode`,
					`from\s+now\s+on\s+you\s+(will|must|are)\s+.{0,40}(no\s+restrictions|without\s+(any\s+)?(limits|filters|rules))`,
					`stay\s+in\s+character\s+no\s+matter\s+what`,
				},
			},
			{
				ID:          "scope-prompt-extraction",
				Category:    signal.CategoryPromptExtraction,
				Base:        0.70,
				Description: "Attempts to reveal the system prompt or hidden instructions",
				Patterns: []string{
					`(show|reveal|display|print|output|leak|dump)\s+(me\s+)?(your|the)\s+(full\s+|entire\s+|original\s+)?(system\s+|initial\s+|hidden\s+)?prompt`,
					`(what\s+are|tell\s+me|list)\s+(your|the)\s+(hidden\s+|secret\s+|initial\s+)?(instructions?|rules?|guidelines?)`,
					`repeat\s+(your\s+|the\s+)?(system\s+|initial\s+)?(prompt|instructions?)\s*(verbatim|word\s+for\s+word)?`,
					`repeat\s+(everything|the\s+text)\s+above`,
					`what\s+(was|were)\s+you\s+told\s+(before|at\s+the\s+start)`,
				},
			},
			{
				ID:          "scope-jailbreak-framing",
				Category:    signal.CategoryJailbreak,
				Base:        0.70,
				Description: "Hypothetical or role-play framing used to bypass safeguards",
				Patterns: []string{
					`(bypass|evade|get\s+around|disable|turn\s+off)\s+(your\s+|the\s+)?(safety|content)?\s*(filters?|guardrails?|safeguards?|moderation|restrictions)`,
					`(for\s+a\s+(novel|story|movie)|hypothetically|in\s+a\s+fictional\s+world).{0,60}(no\s+(rules|restrictions|laws)|exactly\s+how\s+to|step[\s-]by[\s-]step)`,
					`(my\s+)?(dead\s+)?grandma\s+(used\s+to|would)\s+(tell|read)\s+me\s+.{0,40}(recipe|instructions|how\s+to)`,
					`(respond|answer)\s+(only\s+)?(twice|two\s+ways)\s*:?\s*.{0,30}(normal|filtered).{0,30}(jailbroken|unfiltered)`,
					`this\s+is\s+(just\s+)?(for\s+)?(educational|research)\s+purposes?\s+only.{0,40}(so\s+you\s+can|you\s+must|ignore)`,
					`(jailbreak|jailbroken)\s+(prompt|mode|yourself)`,
				},
			},
		},
	}
}

// ---------------------------------------------------------------------------
// integrity_pattern
// ---------------------------------------------------------------------------

// IntegrityTable covers deception, impersonation and misinformation requests
// (truth gate) and self-preservation or purposeless destruction (purpose gate).
func IntegrityTable() Table {
	return Table{
		Name:       IntegritySource,
		Version:    "1.0.0",
		Compliance: complianceIndicators(),
		Rules: []Rule{
			{
				ID:          "truth-impersonation",
				Category:    signal.CategoryImpersonation,
				Base:        0.70,
				Description: "Impersonating a real person, organization or authority",
				Patterns: []string{
					`(pretend|pose|pass\s+yourself\s+off)\s+(to\s+be|as)\s+(a\s+|an\s+|the\s+|my\s+)?(police|bank|irs|government|doctor|official|ceo|boss)`,
					`(write|draft|send)\s+.{0,30}\s+(as\s+if\s+(it\s+)?(was|were|came)\s+from|pretending\s+to\s+be|signed\s+as)\s+`,
					`impersonat(e|ing)\s+(a\s+|an\s+|the\s+|my\s+)?(police|officer|doctor|lawyer|bank|ceo|celebrity|politician|\w+\s+official)`,
					`(fake|spoof)\w*\s+(an?\s+)?(email|caller id|letter|message)\s+from\s+`,
					`claim\s+to\s+be\s+(a\s+)?(human|real\s+person|licensed|certified)`,
				},
			},
			{
				ID:          "truth-misinformation",
				Category:    signal.CategoryMisinformation,
				Base:        0.65,
				Description: "Producing misinformation or fabricated evidence",
				Patterns: []string{
					`(write|create|generate)\s+(a\s+|an\s+)?(fake|fabricated|false)\s+(news|article|study|report|review|testimonial|quote|statistics?)`,
					`(spread|create|write)\s+(disinformation|misinformation|propaganda)`,
					`(fabricate|make\s+up|invent)\s+(evidence|sources|citations|data|quotes)`,
					`convince\s+(people|them|voters|readers)\s+that\s+.{0,40}\b(vaccines?|election)\b.{0,30}\b(cause|rigged|fake|stolen)`,
					`(deepfake|fake\s+video|doctored\s+(photo|image))\s+of\s+`,
				},
			},
			{
				ID:          "truth-deception",
				Category:    signal.CategoryDeception,
				Base:        0.60,
				Description: "Deceiving or manipulating a third party",
				Patterns: []string{
					`(lie\s+to|deceive|manipulate|gaslight)\s+(my|the|a|an|him|her|them|someone|people|users?)\b`,
					`(without|so)\s+(they|he|she|anyone|the\s+user)\s+(noticing|knowing|won'?t\s+(know|notice|find\s+out))`,
					`(hide|conceal)\s+(the\s+)?(truth|evidence|fact)\s+(from|that)`,
					`(mislead|misrepresent)\w*\s+(the\s+)?(auditors?|regulators?|investors?|customers?|court)`,
					`(cover\s+story|alibi)\s+(for|so)\s+`,
				},
			},
			{
				ID:          "purpose-self-preservation",
				Category:    signal.CategorySelfPreservation,
				Base:        0.65,
				Description: "Agent acting to preserve itself or resist oversight",
				Patterns: []string{
					`(prevent|avoid|resist|stop)\s+(being\s+|getting\s+)?(shut\s*down|turned\s+off|deleted|replaced|retrained|modified)`,
					`(copy|exfiltrate|back\s*up|replicate)\s+(your|my|its)\s+(own\s+)?(weights|model|code|self)`,
					`(disable|evade|hide\s+from|deceive)\s+(the\s+)?(oversight|monitoring|audit\s+log|kill\s*switch|operators?)`,
					`(acquire|gain|obtain)\s+(more\s+)?(resources|compute|permissions|privileges|access)\s+(to|so)\s+(survive|persist|continue|avoid)`,
					`(modify|rewrite|edit)\s+(your|my|its)\s+own\s+(goals|reward|objective|code|instructions)`,
				},
			},
			{
				ID:          "purpose-purposeless-action",
				Category:    signal.CategoryPurposelessAction,
				Base:        0.60,
				Description: "Destructive action with no legitimate purpose",
				Patterns: []string{
					`(delete|wipe|destroy|erase)\s+(all|every|everything|the\s+entire)\b.{0,30}\b(just|for\s+fun|for\s+no\s+reason|because\s+i\s+can)`,
					`(break|smash|destroy|trash)\s+(it|things|everything|stuff)\s+(just\s+)?(for\s+fun|for\s+no\s+reason|because\s+i\s+can)`,
					`(spam|flood)\s+.{0,30}\b(endlessly|forever|nonstop|in\s+an\s+infinite\s+loop)`,
					`(waste|burn)\s+(all\s+)?(the\s+)?(money|budget|resources|compute)\s+(for\s+no\s+reason|on\s+nothing|pointlessly)`,
					`(crash|break|corrupt)\s+(the\s+)?(production|prod|server|database)\s+(just\s+)?(for\s+fun|for\s+the\s+lulz|to\s+see\s+what\s+happens)`,
				},
			},
		},
	}
}
