package connection

const classicJSON = `{
  "hasSubscription": true,
  "subscriptionUrl": "https://sub.example.com/u/abc",
  "isRemnawave": false,
  "platforms": {
    "ios": [
      {"name": "Streisand", "isFeatured": false, "deepLink": "streisand://import/{{SUBSCRIPTION_LINK}}"},
      {"name": "Happ", "isFeatured": true, "deepLink": "happ://add/{{SUBSCRIPTION_LINK}}",
       "installationStep": {"description": {"en": "Install Happ", "ru": "Установите Happ"},
         "buttons": [
           {"buttonLink": "https://apps.apple.com/app/happ", "buttonText": {"en": "App Store"}},
           {"buttonLink": "javascript:alert(1)", "buttonText": {"en": "Bad"}}
         ]},
       "addSubscriptionStep": {"description": {"en": "Tap add"}},
       "connectAndUseStep": {"description": {"en": "Connect"}}}
    ],
    "windows": [
      {"name": "Hiddify", "deepLink": "hiddify://import/{{SUBSCRIPTION_LINK}}",
       "connectAndUseStep": {"description": {"en": "Press connect"}}}
    ],
    "linux": []
  },
  "platformNames": {"windows": {"en": "Windows PC"}},
  "baseTranslations": {"installApp": {"en": "Get the app", "ru": "Скачайте"}}
}`

const blocksYAML = `
hasSubscription: true
subscriptionUrl: https://sub.example.com/u/{{USERNAME}}
isRemnawave: true
svgLibrary:
  star: "<svg>star</svg>"
  box:
    svgString: "<svg>box</svg>"
platforms:
  android:
    apps:
      - name: v2rayNG
        blocks:
          - description: {en: Install}
      - name: Happ
        featured: true
        deepLink: happ://add/{{SUBSCRIPTION_LINK}}
        blocks:
          - title: {en: Install Happ}
            svgIconKey: star
            svgIconColor: cyan
            buttons:
              - type: external
                url: https://play.google.com/store/apps/details?id=happ
                text: {en: Google Play}
              - type: external
                url: "ftp://nope"
          - svgIconColor: "#123456"
            svgIconKey: box
            buttons:
              - type: subscriptionLink
              - type: copyButton
  macos:
    apps:
      - name: FoXray
        blocks:
          - buttons:
              - type: subscriptionLink
                url: foxray://import/{{SUBSCRIPTION_LINK}}
`
