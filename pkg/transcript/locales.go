package transcript

// LocaleStrings holds every translatable output string of the
// transcript and summary stages.
type LocaleStrings struct {
	EmptyTranscription       string
	DownloadHeaderTemplate   string
	HallucinationReplacement string
	DocumentDefaultTitle     string
	DocumentTitleTemplate    string
	SummaryTitleTemplate     string
}

var localeFR = LocaleStrings{
	EmptyTranscription: `
**Aucun contenu audio n'a été détecté dans votre transcription.**

*Si vous pensez qu'il s'agit d'une erreur, n'hésitez pas à contacter
notre support technique : visio@numerique.gouv.fr*

.

.

.

Quelques points que nous vous conseillons de vérifier :
- Un micro était-il activé ?
- Étiez-vous suffisamment proche ?
- Le micro est-il de bonne qualité ?
- L'enregistrement dure-t-il plus de 30 secondes ?

`,
	DownloadHeaderTemplate:   "\n*Télécharger votre enregistrement en [suivant ce lien]({download_link})*\n",
	HallucinationReplacement: "[Texte impossible à transcrire]",
	DocumentDefaultTitle:     "Transcription",
	DocumentTitleTemplate:    `Réunion "{room}" du {room_recording_date} à {room_recording_time}`,
	SummaryTitleTemplate:     "Résumé de {title}",
}

var localeEN = LocaleStrings{
	EmptyTranscription: `
**No audio content was detected in your transcription.**

*If you believe this is an error, please do not hesitate to contact
our technical support: visio@numerique.gouv.fr*

.

.

.

A few things we recommend you check:
- Was a microphone enabled?
- Were you close enough to the microphone?
- Is the microphone of good quality?
- Is the recording longer than 30 seconds?

`,
	DownloadHeaderTemplate:   "\n*Download your recording by [following this link]({download_link})*\n",
	HallucinationReplacement: "[Unable to transcribe text]",
	DocumentDefaultTitle:     "Transcription",
	DocumentTitleTemplate:    `Meeting "{room}" on {room_recording_date} at {room_recording_time}`,
	SummaryTitleTemplate:     "Summary of {title}",
}

var localeDE = LocaleStrings{
	EmptyTranscription: `
**In Ihrer Transkription wurde kein Audioinhalt erkannt.**

*Wenn Sie glauben, dass es sich um einen Fehler handelt, zögern Sie nicht,
unseren technischen Support zu kontaktieren: visio@numerique.gouv.fr*

.

.

.

Einige Punkte, die wir Ihnen empfehlen zu überprüfen:
- War ein Mikrofon aktiviert?
- Waren Sie nah genug am Mikrofon?
- Ist das Mikrofon von guter Qualität?
- Dauert die Aufnahme länger als 30 Sekunden?

`,
	DownloadHeaderTemplate:   "\n*Laden Sie Ihre Aufnahme herunter, indem Sie [diesem Link folgen]({download_link})*\n",
	HallucinationReplacement: "[Text konnte nicht transkribiert werden]",
	DocumentDefaultTitle:     "Transkription",
	DocumentTitleTemplate:    `Besprechung "{room}" am {room_recording_date} um {room_recording_time}`,
	SummaryTitleTemplate:     "Zusammenfassung von {title}",
}

var localeNL = LocaleStrings{
	EmptyTranscription: `
**Er is geen audio-inhoud gedetecteerd in uw transcriptie.**

*Als u denkt dat dit een fout is, aarzel dan niet om contact op te nemen
met onze technische ondersteuning: visio@numerique.gouv.fr*

.

.

.

Een paar punten die wij u aanraden te controleren:
- Was er een microfoon ingeschakeld?
- Was u dicht genoeg bij de microfoon?
- Is de microfoon van goede kwaliteit?
- Duurt de opname langer dan 30 seconden?

`,
	DownloadHeaderTemplate:   "\n*Download uw opname door [deze link te volgen]({download_link})*\n",
	HallucinationReplacement: "[Tekst kon niet worden getranscribeerd]",
	DocumentDefaultTitle:     "Transcriptie",
	DocumentTitleTemplate:    `Vergadering "{room}" op {room_recording_date} om {room_recording_time}`,
	SummaryTitleTemplate:     "Samenvatting van {title}",
}

var locales = map[string]LocaleStrings{
	"fr": localeFR,
	"en": localeEN,
	"de": localeDE,
	"nl": localeNL,
}

// GetLocale returns output strings for a language code, defaulting to
// French for unknown codes.
func GetLocale(language string) LocaleStrings {
	if l, ok := locales[language]; ok {
		return l
	}
	return localeFR
}
